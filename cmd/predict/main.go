// Command predict classifies one chest X-ray from disk and optionally writes a PDF report.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/Brownie44l1/cxr-api/internal/config"
	"github.com/Brownie44l1/cxr-api/internal/imaging"
	"github.com/Brownie44l1/cxr-api/internal/model"
	"github.com/Brownie44l1/cxr-api/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)

	imagePath := flag.String("image", "", "Chest X-ray to classify (PNG, JPG, JPEG)")
	reportPath := flag.String("report", "", "Write a PDF report to this path")
	all := flag.Bool("all", false, "Print the score of every class")

	var info report.PatientInfo
	flag.StringVar(&info.ReportID, "report-id", "", "Report ID printed in the header")
	flag.StringVar(&info.PatientID, "patient-id", "", "Patient ID")
	flag.StringVar(&info.PatientName, "patient-name", "", "Patient name")
	flag.StringVar(&info.Age, "age", "", "Patient age")
	flag.StringVar(&info.Sex, "sex", "", "Patient sex")
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !imaging.IsSupported(*imagePath) {
		log.Fatalf("Unsupported file type: %s", *imagePath)
	}

	classifier, err := model.Load(cfg.Paths(), model.Options{
		LibraryPath:    cfg.ORTLibraryPath,
		IntraOpThreads: cfg.IntraOpThreads,
	})
	if err != nil {
		log.Fatalf("Failed to initialize model: %v", err)
	}
	defer model.Shutdown()
	defer classifier.Close()

	result, err := classifier.PredictFile(*imagePath, *all)
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if len(result.Detections) == 0 {
		fmt.Fprintln(tw, "No abnormality found")
	} else {
		fmt.Fprintln(tw, "DISEASE\tCONFIDENCE\tTHRESHOLD")
		for _, d := range result.Detections {
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", d.Disease, d.Confidence, d.Threshold)
		}
	}
	if *all {
		fmt.Fprintln(tw, "\nCLASS\tSCORE\tTHRESHOLD")
		thresholds := classifier.Thresholds()
		for i, name := range classifier.Catalog() {
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", name, result.AllScores[name], thresholds[i])
		}
	}
	tw.Flush()

	if *reportPath != "" {
		out, err := report.NewRenderer().Render(result.Detections, *imagePath, info, *reportPath)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		log.Printf("Report written to %s", out)
	}
}
