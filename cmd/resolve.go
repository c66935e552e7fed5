package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// queryFlags are shared by the single-item commands.
type queryFlags struct {
	name     string
	muniCode string
	muni     string
	address  string
	category string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "infrastructure name (required)")
	cmd.Flags().StringVar(&f.muniCode, "muni-code", "", "INE municipality code")
	cmd.Flags().StringVar(&f.muni, "muni", "", "municipality name")
	cmd.Flags().StringVar(&f.address, "address", "", "street address")
	cmd.Flags().StringVar(&f.category, "category", "", "force a category instead of classifying the name")
	_ = cmd.MarkFlagRequired("name")
}

func (f *queryFlags) query() (geocode.Query, error) {
	q := geocode.Query{
		Name:             f.name,
		MunicipalityCode: f.muniCode,
		MunicipalityName: f.muni,
		Address:          f.address,
	}
	if f.category != "" {
		cat, err := geocode.ParseCategory(f.category)
		if err != nil {
			return q, err
		}
		q.Category = cat
	}
	return q, q.Validate()
}

var resolveFlags queryFlags

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one infrastructure through the source cascade",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		q, err := resolveFlags.query()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Cascade.Resolve(ctx, q)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	resolveFlags.register(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}
