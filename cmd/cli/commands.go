package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"powershare-ledger/internal/app"
	"powershare-ledger/internal/config"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/model"
)

var (
	accountID   string
	accountName string
	gridID      string
	units       int64
	outPath     string
)

var seedCmd = &cobra.Command{
	Use:   "seed [seed.yaml]",
	Short: "Create the grids listed in the config seed section or a seed file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, cfg *config.Config, e *ledger.Engine) error {
			seeds := cfg.Seed
			if len(args) == 1 {
				fromFile, err := config.LoadSeedFile(args[0])
				if err != nil {
					return err
				}
				seeds = config.MergeSeed(seeds, fromFile)
			}
			for i, s := range seeds {
				if err := s.Validate(); err != nil {
					return fmt.Errorf("seed[%d]: %w", i, err)
				}
			}
			n, err := app.Seed(ctx, e, seeds, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d of %d grids\n", n, len(seeds))
			return nil
		})
	},
}

var gridsCmd = &cobra.Command{
	Use:   "grids",
	Short: "List every grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, _ *config.Config, e *ledger.Engine) error {
			grids, err := e.ListGrids(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOWNER\tNAME\tUNITS\tFOR SALE\tAVAILABLE\tPRICE")
			for _, g := range grids {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
					g.ID, g.OwnerID, g.Name, g.Units, g.ForSale, g.Available, g.PricePerUnit.String())
			}
			return w.Flush()
		})
	},
}

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "List grids currently offering units",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, cfg *config.Config, e *ledger.Engine) error {
			offers, err := e.ListOffers(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "GRID\tNAME\tOWNER\tFOR SALE\tPRICE (%s)\n", cfg.Pricing.Currency)
			for _, o := range offers {
				owner := o.OwnerName
				if owner == "" {
					owner = o.OwnerID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.GridID, o.GridName, owner, o.ForSale, o.Price.StringFixed(2))
			}
			return w.Flush()
		})
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Settle a purchase on behalf of an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, cfg *config.Config, e *ledger.Engine) error {
			r, err := e.Buy(ctx, model.Account{ID: accountID, Name: accountName}, gridID, units)
			if err != nil {
				return fmt.Errorf("%s: %w", ledger.Kind(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transaction %s: %d units for %s %s (buyer now holds %d, seller offers %d)\n",
				r.Transaction.ID, r.Transaction.Units, r.Transaction.Total.StringFixed(2), cfg.Pricing.Currency,
				r.BuyerUnits, r.SellerForSale)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show an account's transactions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, _ *config.Config, e *ledger.Engine) error {
			h, err := e.TransactionHistory(ctx, accountID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tROLE\tCOUNTERPARTY\tGRID\tUNITS\tTOTAL")
			for _, en := range h.Entries {
				who := en.CounterpartyName
				if who == "" {
					who = en.CounterpartyID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					en.CreatedAt.Format("2006-01-02 15:04"), en.Role, who, en.CounterpartyGridName,
					en.Units, en.Total.StringFixed(2))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d transactions, %d units bought, %d units sold\n",
				h.TotalCount, h.TotalUnitsBought, h.TotalUnitsSold)
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show an account's bought and sold units per month",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, _ *config.Config, e *ledger.Engine) error {
			months, err := e.MonthlyEnergySummary(ctx, accountID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MONTH\tBOUGHT\tSOLD")
			for _, m := range months {
				fmt.Fprintf(w, "%s\t%d\t%d\n", m.Month, m.Bought, m.Sold)
			}
			return w.Flush()
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an account's history to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, _ *config.Config, e *ledger.Engine) error {
			h, err := e.TransactionHistory(ctx, accountID)
			if err != nil {
				return err
			}
			path := outPath
			if path == "" {
				path = filepath.Join("results", accountID+"-history.csv")
			}
			if err := ledger.WriteHistoryCSV(path, h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d transactions to %s\n", h.TotalCount, path)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{buyCmd, historyCmd, summaryCmd, exportCmd} {
		c.Flags().StringVarP(&accountID, "account", "a", "", "Account id (required)")
		_ = c.MarkFlagRequired("account")
	}
	buyCmd.Flags().StringVar(&accountName, "name", "", "Buyer display name")
	buyCmd.Flags().StringVarP(&gridID, "grid", "g", "", "Seller grid id (required)")
	buyCmd.Flags().Int64VarP(&units, "units", "n", 0, "Units to buy")
	_ = buyCmd.MarkFlagRequired("grid")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV path (default results/<account>-history.csv)")
}
