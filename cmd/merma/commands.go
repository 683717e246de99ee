package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/merma-api/internal/application/dto"
	"github.com/jhoicas/merma-api/internal/domain/entity"
	"github.com/jhoicas/merma-api/internal/domain/ledger"
	"github.com/jhoicas/merma-api/internal/infrastructure/csvimport"
	"github.com/jhoicas/merma-api/internal/infrastructure/export"
	"github.com/jhoicas/merma-api/internal/infrastructure/pdf"
)

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.Parse(time.DateOnly, raw); err == nil {
		return d.Add(24*time.Hour - time.Nanosecond), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of inválido %q: use YYYY-MM-DD o RFC3339", raw)
	}
	return t, nil
}

func newImportCommand() *cobra.Command {
	var encoding, comma string
	cmd := &cobra.Command{
		Use:   "import <archivo.csv>",
		Short: "Importar movimientos desde CSV",
		Long:  "Columnas requeridas: product_id, date, type, quantity. Opcionales: product_name, batch_ref, adjustment_mode, document, warehouse_id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			opts := csvimport.Options{Encoding: encoding}
			if comma != "" {
				opts.Comma = []rune(comma)[0]
			}
			res, err := csvimport.Read(f, opts)
			if err != nil {
				return err
			}
			log.Info().Str("file", args[0]).Str("encoding", res.Encoding).Int("rows", len(res.Movements)).Msg("csv leído")

			byProduct := res.ByProduct()
			ids := make([]string, 0, len(byProduct))
			for id := range byProduct {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PRODUCTO\tAPLICADOS\tLOTES\tCONCILIACIONES\tSALDO")
			for _, id := range ids {
				if err := deps.Products.Ensure(ctx, id, res.Products[id]); err != nil {
					return fmt.Errorf("producto %s: %w", id, err)
				}
				movs := byProduct[id]
				sort.SliceStable(movs, func(i, j int) bool { return movs[i].Date.Before(movs[j].Date) })
				state, err := deps.Shrinkage.ApplyMovements(ctx, id, movs)
				if err != nil {
					return fmt.Errorf("producto %s: %w", id, err)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", id, state.Applied, len(state.Batches), len(state.Events), state.Totals.Remaining.String())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "auto", "auto | utf-8 | windows-1251")
	cmd.Flags().StringVar(&comma, "comma", "", "separador; vacío detecta ',' o ';'")
	return cmd
}

func newLedgerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <producto>",
		Short: "Mostrar los lotes de un producto",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := deps.Shrinkage.Ledger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOTE\tLLEGADA\tINICIAL\tVENDIDO\tAJUSTE\tSALDO\tEXTERNO")
			for _, b := range state.Batches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n", b.ID, b.ArrivalDate.Format(time.DateOnly),
					b.Initial.String(), b.Sold.String(), b.Adjusted.String(), b.Remaining.String(), b.IsExternal)
			}
			return tw.Flush()
		},
	}
}

func newMovementsCommand() *cobra.Command {
	var fromRaw, toRaw string
	cmd := &cobra.Command{
		Use:   "movements <producto>",
		Short: "Listar el registro de movimientos aceptados",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from, to *time.Time
			if fromRaw != "" {
				f, err := time.Parse(time.DateOnly, fromRaw)
				if err != nil {
					return fmt.Errorf("--from inválido %q: use YYYY-MM-DD", fromRaw)
				}
				from = &f
			}
			if toRaw != "" {
				t, err := parseAsOf(toRaw)
				if err != nil {
					return err
				}
				to = &t
			}
			movs, err := deps.Movements.ListByProduct(cmd.Context(), args[0], from, to)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FECHA\tTIPO\tCANTIDAD\tLOTE\tMODO\tDOCUMENTO")
			for _, m := range movs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", m.Date.Format(time.RFC3339), m.Type,
					m.Quantity.String(), m.BatchRef, m.AdjustmentMode, m.Document)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&fromRaw, "from", "", "desde YYYY-MM-DD")
	cmd.Flags().StringVar(&toRaw, "to", "", "hasta YYYY-MM-DD (incluido) o RFC3339")
	return cmd
}

func newAuditCommand() *cobra.Command {
	var product string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Auditar saldos y lotes externos",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var reports []ledger.AuditReport
			if product != "" {
				r, err := deps.Shrinkage.Audit(ctx, product)
				if err != nil {
					return err
				}
				reports = append(reports, *r)
			} else {
				var err error
				if reports, err = deps.Shrinkage.AuditAll(ctx); err != nil {
					return err
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PRODUCTO\tNEGATIVOS\tEXCESIVOS\tEXTERNOS\tCONCILIACIONES\tCONSERVACIÓN")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%t\n", r.ProductID, len(r.NegativeBatches), len(r.ExcessBatches),
					len(r.ExternalBatches), len(r.Events), r.ConservationHold)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "auditar solo este producto")
	return cmd
}

func newCalibrateCommand() *cobra.Command {
	var product string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrar los coeficientes de merma",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var results []entity.ShrinkageCoefficients
			if product != "" {
				c, err := deps.Shrinkage.Calibrate(ctx, product)
				if err != nil {
					return err
				}
				results = append(results, c)
			} else {
				all, err := deps.Shrinkage.CalibrateAll(ctx)
				if err != nil {
					return err
				}
				for _, c := range all {
					results = append(results, c)
				}
				sort.Slice(results, func(i, j int) bool { return results[i].ProductID < results[j].ProductID })
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PRODUCTO\tESTADO\tA\tB\tC\tRMSE\tPUNTOS\tITER")
			for _, c := range results {
				fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%.6f\t%.3g\t%d\t%d\n", c.ProductID, c.Status, c.A, c.B, c.C, c.RMSE, c.DataPoints, c.Iterations)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "calibrar solo este producto")
	return cmd
}

func newForecastCommand() *cobra.Command {
	var product, strategy, asOfRaw string
	var outputs []string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Pronosticar la merma de los lotes activos",
		Long:  "Sin --out imprime la tabla Markdown por stdout. --out acepta .json, .md o .markdown y puede repetirse.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			asOf, err := parseAsOf(asOfRaw)
			if err != nil {
				return err
			}
			var calcs []entity.ShrinkageCalculation
			if product != "" {
				calcs, err = deps.Shrinkage.Forecast(ctx, product, strategy, asOf)
			} else {
				calcs, err = deps.Shrinkage.ForecastAll(ctx, strategy, asOf)
			}
			if err != nil {
				return err
			}
			if len(outputs) == 0 {
				return export.Markdown{}.Export(cmd.OutOrStdout(), calcs)
			}
			for _, path := range outputs {
				if err := export.WriteFile(path, calcs); err != nil {
					return err
				}
				log.Info().Str("file", path).Int("rows", len(calcs)).Msg("pronóstico exportado")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "pronosticar solo este producto")
	cmd.Flags().StringVar(&strategy, "strategy", "", "portion | weighted | compatibility (vacío = SHRINKAGE_DEFAULT_STRATEGY)")
	cmd.Flags().StringVar(&asOfRaw, "as-of", "", "fecha de corte YYYY-MM-DD o RFC3339 (vacío = ahora)")
	cmd.Flags().StringSliceVarP(&outputs, "out", "o", nil, "archivo de salida (.json, .md)")
	return cmd
}

func newReportCommand() *cobra.Command {
	var strategy, asOfRaw, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generar el informe PDF de merma",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			asOf, err := parseAsOf(asOfRaw)
			if err != nil {
				return err
			}
			st, err := deps.Shrinkage.ResolveStrategy(strategy)
			if err != nil {
				return err
			}
			calcs, err := deps.Shrinkage.ForecastAll(ctx, string(st), asOf)
			if err != nil {
				return err
			}
			coeffs, err := deps.Shrinkage.Coefficients(ctx)
			if err != nil {
				return err
			}
			if asOf.IsZero() {
				asOf = time.Now().UTC()
			}
			raw, err := pdf.NewMarotoPDFGenerator().GenerateReport(ctx, pdf.Report{
				Strategy:     string(st),
				AsOf:         asOf,
				Calculations: calcs,
				Coefficients: coeffs,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, raw, 0o644); err != nil {
				return err
			}
			log.Info().Str("file", out).Int("bytes", len(raw)).Msg("informe generado")
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "portion | weighted | compatibility")
	cmd.Flags().StringVar(&asOfRaw, "as-of", "", "fecha de corte YYYY-MM-DD o RFC3339")
	cmd.Flags().StringVarP(&out, "out", "o", "merma.pdf", "archivo PDF de salida")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emitir un token de acceso para la API",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := deps.Auth.IssueToken(dto.TokenRequest{UserID: userID, Role: strings.ToLower(role)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			log.Info().Str("user_id", tok.UserID).Str("role", tok.Role).Time("expires_at", tok.ExpiresAt).Msg("token emitido")
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "user_id del token")
	cmd.Flags().StringVar(&role, "role", "admin", "admin | analyst | operator")
	return cmd
}
