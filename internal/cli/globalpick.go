package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anchorlab/anchorengine/internal/demo"
	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/aggregator"
	"github.com/anchorlab/anchorengine/internal/store"
)

func init() {
	rootCmd.AddCommand(globalPickCmd)
	globalPickCmd.Flags().StringP("file", "f", "", "path to a JSON file: [{\"features\":[...],\"label\":n}, ...]")
	globalPickCmd.Flags().Int("d", 0, "number of anchors to select (0 uses the config default)")
	globalPickCmd.Flags().Int("span", 0, "perturbation offset half-range (0 uses the demo default)")
	_ = globalPickCmd.MarkFlagRequired("file")
}

var globalPickCmd = &cobra.Command{
	Use:   "globalpick",
	Short: "Select a small set of anchors that globally summarize the demo classifier",
	Long: `globalpick runs the anchor constructor over every instance in the
input file and greedily selects a coverage-maximizing subset via the
submodular pick objective.`,
	RunE: runGlobalPick,
}

type globalPickInput struct {
	Features []int `json:"features"`
	Label    int   `json:"label"`
}

func runGlobalPick(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	d, _ := cmd.Flags().GetInt("d")
	span, _ := cmd.Flags().GetInt("span")

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	var inputs []globalPickInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%s contains no instances", file)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if d <= 0 {
		d = cfg.Aggregator.D
	}

	instances := make([]domain.DataInstance, len(inputs))
	labels := make([]int, len(inputs))
	for i, in := range inputs {
		instances[i] = demo.Instance(in.Features)
		labels[i] = in.Label
	}
	basePerturb := demo.NewUniformOffsetPerturbation(instances[0], span, time.Now().UnixNano())

	acfg := cfg.AggregatorConfig()
	agg := aggregator.New(acfg, demo.QuadrantClassifier{}, cfg.BanditIdentifier(), basePerturb)

	ctx := context.Background()
	log.Printf("globalpick: explaining %d instances", len(instances))
	results, matrix, err := agg.Explain(ctx, instances, labels)
	if err != nil {
		return fmt.Errorf("aggregator explain: %w", err)
	}

	picked := aggregator.SubmodularPick(matrix, d)
	log.Printf("globalpick: selected %d of %d explanations", len(picked), len(results))

	var st *store.Store
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		st = store.NewStore(db)
	}

	passID := uuid.NewString()
	runIDs := make([]string, 0, len(picked))
	out := make([]map[string]any, 0, len(picked))
	for _, idx := range picked {
		r := results[idx]
		runID := uuid.NewString()
		runIDs = append(runIDs, runID)
		out = append(out, map[string]any{
			"run_id":    runID,
			"features":  r.Candidate.Features,
			"precision": r.Candidate.Precision(),
			"coverage":  r.Candidate.Coverage,
			"is_anchor": r.IsAnchor,
		})
		if st != nil {
			if err := st.RecordResult(ctx, runID, r); err != nil {
				return fmt.Errorf("record result: %w", err)
			}
		}
	}
	if st != nil {
		if err := st.RecordPick(ctx, passID, "submodular", d, acfg.Mode.String(), atomIdentityName(acfg.Identity), runIDs); err != nil {
			return fmt.Errorf("record pick: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"pass_id": passID, "picks": out})
}

func atomIdentityName(id domain.AtomIdentity) string {
	if id == domain.AtomByFeatureValue {
		return "feature_value"
	}
	return "feature"
}
