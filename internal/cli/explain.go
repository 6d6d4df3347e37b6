package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anchorlab/anchorengine/internal/demo"
	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/anchor"
	"github.com/anchorlab/anchorengine/internal/infra/coverage"
	"github.com/anchorlab/anchorengine/internal/store"
)

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().String("features", "", "comma-separated integer feature values, e.g. 1,100")
	explainCmd.Flags().Int("label", 1, "the label to explain")
	explainCmd.Flags().Int("span", 0, "perturbation offset half-range (0 uses the demo default)")
	_ = explainCmd.MarkFlagRequired("features")
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Construct an anchor for a single instance using the built-in demo classifier",
	Long: `explain runs the beam-search anchor constructor against the
built-in quadrant demo classifier and uniform-offset perturbation. It
exists to exercise the engine end-to-end without wiring in a real
classifier; production callers use the engine as a library instead.`,
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	featuresFlag, _ := cmd.Flags().GetString("features")
	label, _ := cmd.Flags().GetInt("label")
	span, _ := cmd.Flags().GetInt("span")

	features, err := parseFeatures(featuresFlag)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	instance := demo.Instance(features)
	perturb := demo.NewUniformOffsetPerturbation(instance, span, time.Now().UnixNano())

	log.Printf("explain: constructing anchor for features=%v label=%d", features, label)
	cov, err := coverage.New(ctx, perturb, cfg.Sampling.CoverageSamples)
	if err != nil {
		return fmt.Errorf("build coverage estimator: %w", err)
	}

	c := anchor.New(cfg.AnchorConfig(), demo.QuadrantClassifier{}, cfg.BanditIdentifier())
	result, err := c.Construct(ctx, instance, label, perturb, cov)
	if err != nil {
		if !errors.Is(err, domain.ErrNoAnchorFound) {
			log.Printf("explain: construction failed: %v", err)
			return err
		}
		log.Printf("explain: no rule met the target precision; reporting the best candidate")
	}
	log.Printf("explain: done in %s, is_anchor=%t rounds=%d", result.SearchDuration, result.IsAnchor, result.RoundsSearched)

	runID := uuid.NewString()
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		if err := store.NewStore(db).RecordResult(ctx, runID, *result); err != nil {
			return fmt.Errorf("record result: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"run_id":          runID,
		"features":        result.Candidate.Features,
		"precision":       result.Candidate.Precision(),
		"coverage":        result.Candidate.Coverage,
		"is_anchor":       result.IsAnchor,
		"rounds_searched": result.RoundsSearched,
	})
}

func parseFeatures(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid feature value %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no features provided")
	}
	return out, nil
}
