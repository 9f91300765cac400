package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"particle-universe/application/commands"
	"particle-universe/application/queries"
	"particle-universe/application/services"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"
	"particle-universe/pkg/auth"
	pkgerrors "particle-universe/pkg/errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSpawnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a particle for a user",
		Long: `Spawn a particle owned by --user. Without --x and --y the particle
starts at a random location.

Examples:
  universe spawn --user alice
  universe spawn --user bob --x 120 --y 40`,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			if user == "" {
				user = uuid.NewString()
			}

			spawn := commands.SpawnParticleCommand{UserID: user}
			if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
				x, _ := cmd.Flags().GetFloat64("x")
				y, _ := cmd.Flags().GetFloat64("y")
				spawn.Position = &valueobjects.Vector2{X: x, Y: y}
			}

			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.CommandBus.Send(ctx, spawn)
				if err != nil {
					return err
				}
				view := queries.NewParticleView(result.(*entities.Particle))
				return emit(cmd, view, func(w io.Writer) {
					fmt.Fprintf(w, "Spawned %s for %s at (%.1f, %.1f)\n", view.ID, view.UserID, view.Position.X, view.Position.Y)
				})
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id (random when empty)")
	cmd.Flags().Float64("x", 0, "Starting x coordinate")
	cmd.Flags().Float64("y", 0, "Starting y coordinate")
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active particles",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cursor, _ := cmd.Flags().GetString("cursor")

			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.QueryBus.Ask(ctx, queries.ListActiveParticlesQuery{Limit: limit, Cursor: cursor})
				if err != nil {
					return err
				}
				list := result.(*queries.ListActiveParticlesResult)
				return emit(cmd, list, func(w io.Writer) {
					if len(list.Particles) == 0 {
						fmt.Fprintln(w, "No active particles.")
						return
					}
					for _, p := range list.Particles {
						printParticle(w, p)
					}
					if list.HasMore {
						fmt.Fprintf(w, "More results: --cursor %s\n", list.NextCursor)
					}
				})
			})
		},
	}
	cmd.Flags().Int("limit", 50, "Maximum particles to list")
	cmd.Flags().String("cursor", "", "Resume after this particle id")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <particle-id>",
		Short: "Show one particle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.QueryBus.Ask(ctx, queries.GetParticleQuery{ParticleID: args[0]})
				if err != nil {
					return err
				}
				view := result.(*queries.ParticleView)
				return emit(cmd, view, func(w io.Writer) { printParticle(w, *view) })
			})
		},
	}
}

func newTickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				reports := make([]*services.TickReport, 0, count)
				for i := 0; i < count; i++ {
					report, err := triggerTick(ctx, c)
					if err != nil {
						return err
					}
					reports = append(reports, report)
				}
				return emit(cmd, reports, func(w io.Writer) {
					for _, r := range reports {
						printReport(w, r)
					}
				})
			})
		},
	}
	cmd.Flags().Int("count", 1, "Number of ticks to run")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tick the universe on an interval until interrupted",
		Long: `Run the scheduler in the foreground. Stops on Ctrl-C or after
--ticks ticks when set.

Examples:
  universe run --interval 2s
  universe run --interval 100ms --ticks 50 --seed 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			maxTicks, _ := cmd.Flags().GetInt("ticks")
			seed, _ := cmd.Flags().GetInt("seed")
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				for i := 0; i < seed; i++ {
					if _, err := c.CommandBus.Send(ctx, commands.SpawnParticleCommand{UserID: uuid.NewString()}); err != nil {
						return fmt.Errorf("failed to seed particle: %w", err)
					}
				}

				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for done := 0; maxTicks == 0 || done < maxTicks; done++ {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}

					report, err := triggerTick(ctx, c)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					if err != nil {
						return err
					}
					if err := emit(cmd, report, func(w io.Writer) { printReport(w, report) }); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().Duration("interval", time.Second, "Time between ticks")
	cmd.Flags().Int("ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().Int("seed", 0, "Spawn this many particles for random users first")
	return cmd
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the universe summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.QueryBus.Ask(ctx, queries.GetUniverseStateQuery{})
				if err != nil {
					return err
				}
				state := result.(*queries.UniverseStateView)
				return emit(cmd, state, func(w io.Writer) {
					fmt.Fprintf(w, "Universe %s\n", state.UniverseID)
					fmt.Fprintf(w, "  Tick:          %d\n", state.TickNumber)
					if !state.Timestamp.IsZero() {
						fmt.Fprintf(w, "  Last tick:     %s\n", state.Timestamp.Format(time.RFC3339))
					}
					fmt.Fprintf(w, "  Active:        %d\n", state.ActiveCount)
					fmt.Fprintf(w, "  Avg energy:    %.3f\n", state.AverageEnergy)
					fmt.Fprintf(w, "  Interactions:  %d\n", state.InteractionCount)
				})
			})
		},
	}
}

func newNeighborsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighbors <particle-id>",
		Short: "List active particles near one particle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			radius, _ := cmd.Flags().GetFloat64("radius")

			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.QueryBus.Ask(ctx, queries.GetNeighborsQuery{ParticleID: args[0], Radius: radius})
				if err != nil {
					return err
				}
				found := result.(*queries.GetNeighborsResult)
				return emit(cmd, found, func(w io.Writer) {
					fmt.Fprintf(w, "%d neighbors within %.1f of %s\n", len(found.Neighbors), found.Radius, found.ParticleID)
					for _, n := range found.Neighbors {
						fmt.Fprintf(w, "  %s  distance=%.2f  energy=%.3f\n", n.Particle.ID, n.Distance, n.Particle.Energy)
					}
				})
			})
		},
	}
	cmd.Flags().Float64("radius", 0, "Search radius (0 uses the interaction radius)")
	return cmd
}

func newCompatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compat <particle-a> <particle-b>",
		Short: "Score the personality compatibility of two particles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.QueryBus.Ask(ctx, queries.GetCompatibilityQuery{ParticleA: args[0], ParticleB: args[1]})
				if err != nil {
					return err
				}
				view := result.(*queries.CompatibilityView)
				return emit(cmd, view, func(w io.Writer) {
					fmt.Fprintf(w, "Compatibility %.3f\n", view.Compatibility)
				})
			})
		},
	}
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <particle-a> <particle-b>",
		Short: "Preview how two particles would interact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *di.Container) error {
				result, err := c.QueryBus.Ask(ctx, queries.EvaluateInteractionQuery{ParticleA: args[0], ParticleB: args[1]})
				if err != nil {
					return err
				}
				view := result.(*queries.InteractionView)
				return emit(cmd, view, func(w io.Writer) {
					fmt.Fprintf(w, "%s (strength %.3f, compatibility %.3f)\n", view.Type, view.Strength, view.Compatibility)
					if view.Description != "" {
						fmt.Fprintf(w, "  %s\n", view.Description)
					}
				})
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the local API",
		Long: `Mint a bearer token signed with JWT_SECRET (the development secret
when unset). Grant --role operator to trigger ticks over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if user == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			generator, err := auth.NewJWTGenerator(cfg.JWTSecret, cfg.JWTIssuer, ttl)
			if err != nil {
				return err
			}
			token, err := generator.GenerateToken(user, roles...)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			return emit(cmd, map[string]interface{}{"token": token, "userId": user, "roles": roles}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().String("user", "", "Token subject")
	cmd.Flags().StringSlice("role", nil, "Roles to grant (repeatable)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func triggerTick(ctx context.Context, c *di.Container) (*services.TickReport, error) {
	ctx, end := c.Tracer.StartSegment(ctx, "CLITick")
	result, err := c.CommandBus.Send(ctx, commands.TriggerTickCommand{RequestedBy: "cli"})
	end(err)
	if err != nil {
		if pkgerrors.IsConcurrentTick(err) {
			return nil, fmt.Errorf("another tick is running against this store: %w", err)
		}
		return nil, err
	}
	return result.(*services.TickReport), nil
}

func printParticle(w io.Writer, p queries.ParticleView) {
	fmt.Fprintf(w, "%s  user=%s  state=%s  pos=(%.1f, %.1f)  energy=%.3f  mass=%.2f\n",
		p.ID, p.UserID, p.State, p.Position.X, p.Position.Y, p.Energy, p.Mass)
}

func printReport(w io.Writer, r *services.TickReport) {
	fmt.Fprintf(w, "Tick %d: processed=%d active=%d expired=%d interactions=%d avgEnergy=%.3f (%s)\n",
		r.TickNumber, r.Processed, r.Active, r.Expired, r.Interactions, r.AverageEnergy, r.Duration)
}
