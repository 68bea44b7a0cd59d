package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"churnpredict/config"
	"churnpredict/db"
	"churnpredict/logging"
	"churnpredict/ml"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type options struct {
	flags      *flag.FlagSet
	configPath string
	modelPath  string
	dataPath   string
	samples    int
	seed       int64
	trees      int
	maxDepth   int
	testRatio  float64
	record     bool
}

func parseOptions(args []string) (*options, error) {
	o := &options{flags: flag.NewFlagSet("train_model", flag.ContinueOnError)}
	fs := o.flags
	fs.StringVar(&o.configPath, "config", "config.yaml", "config file")
	fs.StringVar(&o.modelPath, "model_path", "", "model output path (defaults to model.path)")
	fs.StringVar(&o.dataPath, "data_path", "", "sample data CSV output path (defaults to training.sample_data_path)")
	fs.IntVar(&o.samples, "samples", 0, "number of synthetic customers")
	fs.Int64Var(&o.seed, "seed", 0, "random seed")
	fs.IntVar(&o.trees, "n_estimators", 0, "number of trees")
	fs.IntVar(&o.maxDepth, "max_depth", 0, "max tree depth")
	fs.Float64Var(&o.testRatio, "test_ratio", 0, "test ratio")
	fs.BoolVar(&o.record, "record", true, "store model performance in the database")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// apply overrides config values with the flags given on the command line.
func (o *options) apply(cfg *config.Config) {
	o.flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model_path":
			cfg.Model.Path = o.modelPath
		case "data_path":
			cfg.Training.SampleDataPath = o.dataPath
		case "samples":
			cfg.Training.Samples = o.samples
		case "seed":
			cfg.Training.Seed = o.seed
		case "n_estimators":
			cfg.Training.NEstimators = o.trees
		case "max_depth":
			cfg.Training.MaxDepth = o.maxDepth
		case "test_ratio":
			cfg.Training.TestRatio = o.testRatio
		}
	})
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid training options: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.IsProduction())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	result, err := ml.Train(cfg.Training.TrainConfig(), logger)
	if err != nil {
		logger.Fatal("failed to train model", zap.Error(err))
	}

	if cfg.Training.SampleDataPath != "" {
		if err := ml.WriteSampleCSV(cfg.Training.SampleDataPath, result.Dataset); err != nil {
			logger.Fatal("failed to write sample data", zap.Error(err))
		}
		logger.Info("sample data written", zap.String("path", cfg.Training.SampleDataPath))
	}

	if err := ml.SaveArtifact(cfg.Model.Path, result.Artifact); err != nil {
		logger.Fatal("failed to save model", zap.Error(err))
	}

	if opts.record {
		if err := recordPerformance(cfg.Database.Path, result.Artifact); err != nil {
			logger.Warn("failed to record model performance", zap.Error(err))
		}
	}

	printReport(os.Stdout, result)
	fmt.Printf("model saved to %s\n", cfg.Model.Path)
}

func recordPerformance(path string, artifact *ml.ModelArtifact) error {
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	positive := artifact.Report.Positive()
	return store.StoreModelPerformance(context.Background(), db.ModelPerformance{
		ModelVersion:    db.DefaultModelVersion,
		Accuracy:        artifact.Accuracy,
		Precision:       positive.Precision,
		Recall:          positive.Recall,
		F1:              positive.F1,
		TrainingSamples: artifact.TrainSamples,
	})
}

func printReport(w io.Writer, result *ml.TrainResult) {
	p := message.NewPrinter(language.English)
	a := result.Artifact

	churned := 0
	for _, row := range result.Dataset {
		churned += row.Churn
	}
	p.Fprintf(w, "dataset: %d customers, churn rate %.1f%%\n", len(result.Dataset), float64(churned)/float64(max(len(result.Dataset), 1))*100)
	p.Fprintf(w, "split: %d train / %d test\n", a.TrainSamples, a.TestSamples)
	p.Fprintf(w, "trained in %v\n\n", result.Duration.Round(1e6))

	p.Fprintf(w, "accuracy: %.4f\n", a.Accuracy)
	p.Fprintf(w, "%-10s %10s %10s %10s %10s\n", "class", "precision", "recall", "f1-score", "support")
	for _, c := range a.Report.Classes {
		name := "No Churn"
		if c.Label == 1 {
			name = "Churn"
		}
		p.Fprintf(w, "%-10s %10.2f %10.2f %10.2f %10d\n", name, c.Precision, c.Recall, c.F1, c.Support)
	}

	p.Fprintf(w, "\nconfusion matrix (rows actual, columns predicted):\n")
	for _, row := range a.Report.ConfusionMatrix {
		for _, v := range row {
			p.Fprintf(w, "%8d", v)
		}
		p.Fprintf(w, "\n")
	}

	importances := a.Model.FeatureImportances()
	order := make([]int, len(importances))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return importances[order[i]] > importances[order[j]] })
	p.Fprintf(w, "\nfeature importances:\n")
	for _, i := range order {
		if i >= len(a.FeatureNames) {
			continue
		}
		p.Fprintf(w, "  %-22s %.4f\n", a.FeatureNames[i], importances[i])
	}

	p.Fprintf(w, "\ncategory codes:\n")
	names := make([]string, 0, len(a.Codec.Encoders))
	for name := range a.Codec.Encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		encoder := a.Codec.Encoders[name]
		p.Fprintf(w, "  %s:", name)
		for code := range encoder.Classes {
			class, err := encoder.InverseTransform(code)
			if err != nil {
				break
			}
			p.Fprintf(w, " %d=%s", code, class)
		}
		p.Fprintf(w, "\n")
	}
	p.Fprintf(w, "\n")
}
