package config

import "flag"

// BindFlags registers command-line flags on fs using the current values as defaults,
// so parsed flags take priority over the file and the environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringVar(&c.ModelPath, "model", c.ModelPath, "Path to the ONNX model")
	fs.StringVar(&c.MetadataPath, "metadata", c.MetadataPath, "Path to model_metadata.json")
	fs.StringVar(&c.ThresholdsPath, "thresholds", c.ThresholdsPath, "Path to the per-class thresholds (.npy or .json)")
	fs.StringVar(&c.ClassWeightsPath, "class-weights", c.ClassWeightsPath, "Optional path to the class weights (.npy or .json)")
	fs.StringVar(&c.ORTLibraryPath, "ort-lib", c.ORTLibraryPath, "Path to the ONNX Runtime shared library")
	fs.IntVar(&c.IntraOpThreads, "threads", c.IntraOpThreads, "Intra-op threads for inference (0 = runtime default)")
	fs.StringVar(&c.ReportDir, "report-dir", c.ReportDir, "Directory for generated PDF reports")
	fs.BoolVar(&c.KeepReports, "keep-reports", c.KeepReports, "Keep generated reports after they are downloaded")
	fs.IntVar(&c.MaxUploadMB, "max-upload-mb", c.MaxUploadMB, "Maximum upload size in megabytes")
}
