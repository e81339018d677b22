package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/profile"
	profilepg "github.com/MrWong99/hearken/internal/profile/postgres"
)

var (
	freezeReason string
	enrollFile   string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Voice profile maintenance",
	Long: `Inspect and repair the voice profiles stored in PostgreSQL.

Examples:
  hearken profile enroll alice --file baseline.json
  hearken profile health alice
  hearken profile rollback alice
  hearken profile rollback alice 3f0c...
  hearken profile freeze alice --reason "noisy week"
  hearken profile unfreeze alice`,
}

var profileEnrollCmd = &cobra.Command{
	Use:   "enroll <user>",
	Short: "Create a profile from baseline embeddings",
	Long: `Create a complete profile from a JSON file of verified baseline samples:

  [{"embedding": [0.01, ...], "quality": 0.8}, ...]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := readEnrollment(enrollFile)
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, store profile.Store, cfg *config.Config) error {
			p, err := enroll(ctx, store, cfg, args[0], samples)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s enrolled for %s from %d samples, health %.3f\n",
				p.ID, p.UserID, len(samples), p.HealthScore)
			return nil
		})
	},
}

var profileHealthCmd = &cobra.Command{
	Use:   "health <user>",
	Short: "Compute and log the profile health report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfile(cmd, args[0], func(ctx context.Context, l *profile.Learner, p *profile.Profile) error {
			e, err := l.CheckHealth(ctx, p.ID)
			if err != nil {
				return err
			}
			printHealth(cmd.OutOrStdout(), p, e)
			return nil
		})
	},
}

var profileRollbackCmd = &cobra.Command{
	Use:   "rollback <user> [snapshot]",
	Short: "Restore the profile to a snapshot (latest by default)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var snapshotID string
		if len(args) == 2 {
			snapshotID = args[1]
		}
		return withProfile(cmd, args[0], func(ctx context.Context, l *profile.Learner, p *profile.Profile) error {
			res, err := l.Rollback(ctx, p.ID, snapshotID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.NoOp {
				fmt.Fprintf(out, "profile %s already matches snapshot %s\n", p.ID, res.SnapshotID)
				return nil
			}
			fmt.Fprintf(out, "profile %s rolled back to snapshot %s, %d samples deactivated\n",
				p.ID, res.SnapshotID, len(res.Deactivated))
			return nil
		})
	},
}

var profileFreezeCmd = &cobra.Command{
	Use:   "freeze <user>",
	Short: "Stop adaptive learning for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfile(cmd, args[0], func(ctx context.Context, l *profile.Learner, p *profile.Profile) error {
			if err := l.Freeze(ctx, p.ID, freezeReason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s frozen\n", p.ID)
			return nil
		})
	},
}

var profileUnfreezeCmd = &cobra.Command{
	Use:   "unfreeze <user>",
	Short: "Resume adaptive learning for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfile(cmd, args[0], func(ctx context.Context, l *profile.Learner, p *profile.Profile) error {
			if err := l.Unfreeze(ctx, p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s unfrozen\n", p.ID)
			return nil
		})
	},
}

func init() {
	profileFreezeCmd.Flags().StringVar(&freezeReason, "reason", "manual", "reason recorded on the profile")
	profileEnrollCmd.Flags().StringVarP(&enrollFile, "file", "f", "", "JSON file with baseline samples")
	_ = profileEnrollCmd.MarkFlagRequired("file")

	profileCmd.AddCommand(profileEnrollCmd)
	profileCmd.AddCommand(profileHealthCmd)
	profileCmd.AddCommand(profileRollbackCmd)
	profileCmd.AddCommand(profileFreezeCmd)
	profileCmd.AddCommand(profileUnfreezeCmd)
}

// withProfile opens the configured store, resolves userID to its profile
// and runs fn with a learner over that store.
func withProfile(cmd *cobra.Command, userID string, fn func(context.Context, *profile.Learner, *profile.Profile) error) error {
	return withStore(cmd, func(ctx context.Context, store profile.Store, cfg *config.Config) error {
		return runOnProfile(ctx, store, cfg, userID, fn)
	})
}

// withStore opens the configured PostgreSQL profile store for fn.
func withStore(cmd *cobra.Command, fn func(context.Context, profile.Store, *config.Config) error) error {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cfg.Storage.PostgresDSN == "" {
		return errors.New("profile commands need storage.postgres_dsn")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := profilepg.NewStore(ctx, cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDimensions)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store, cfg)
}

// enroll refuses to replace an existing profile.
func enroll(ctx context.Context, store profile.Store, cfg *config.Config, userID string, samples []profile.EnrollmentSample) (*profile.Profile, error) {
	_, err := store.ProfileByUser(ctx, userID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("user %q is already enrolled, roll back or remove the profile first", userID)
	case !errors.Is(err, profile.ErrNotFound):
		return nil, err
	}
	return profile.NewLearner(store, cfg.Learner.Profile()).Enroll(ctx, userID, samples)
}

type enrollmentSample struct {
	Embedding []float32 `json:"embedding"`
	Quality   float64   `json:"quality"`
}

func readEnrollment(path string) ([]profile.EnrollmentSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []enrollmentSample
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s holds no samples", path)
	}
	out := make([]profile.EnrollmentSample, len(raw))
	for i, r := range raw {
		out[i] = profile.EnrollmentSample{Embedding: r.Embedding, Quality: r.Quality}
	}
	return out, nil
}

func runOnProfile(ctx context.Context, store profile.Store, cfg *config.Config, userID string, fn func(context.Context, *profile.Learner, *profile.Profile) error) error {
	p, err := store.ProfileByUser(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return fmt.Errorf("user %q has no enrolled profile", userID)
	}
	if err != nil {
		return err
	}
	return fn(ctx, profile.NewLearner(store, cfg.Learner.Profile()), p)
}

func printHealth(w io.Writer, p *profile.Profile, e *profile.HealthLogEntry) {
	fmt.Fprintf(w, "profile:    %s (user %s)\n", p.ID, p.UserID)
	fmt.Fprintf(w, "score:      %.3f\n", e.Score)
	fmt.Fprintf(w, "variance:   %.4f\n", e.IntraClassVariance)
	fmt.Fprintf(w, "samples:    %d\n", e.SampleCount)
	fmt.Fprintf(w, "quality:    %.3f\n", e.AverageQuality)
	fmt.Fprintf(w, "trend:      %s\n", e.Trend)
	if len(e.Recommendations) > 0 {
		fmt.Fprintf(w, "recommend:  %s\n", strings.Join(e.Recommendations, "; "))
	}
}
