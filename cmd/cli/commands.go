package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/extraction"
	"github.com/dvloznov/finance-reconciler/internal/gcsuploader"
	"github.com/dvloznov/finance-reconciler/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract candidate events from text or a receipt image",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text, _ := cmd.Flags().GetString("text")
		imagePath, _ := cmd.Flags().GetString("image")
		imageURI, _ := cmd.Flags().GetString("image-uri")
		fixture, _ := cmd.Flags().GetString("static")
		account, _ := cmd.Flags().GetString("account")
		reconcile, _ := cmd.Flags().GetBool("reconcile")

		in := extraction.Input{Text: text, ImageURI: imageURI}
		if imagePath != "" {
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			in.Image = data
		}
		if fixture == "" && in.Empty() {
			return fmt.Errorf("one of --text, --image or --image-uri is required")
		}

		return withEngine(ctx, func(e *pipeline.Engine) error {
			extractor, closeFn, err := newExtractor(ctx, fixture, imageURI != "")
			if err != nil {
				return err
			}
			defer closeFn()

			ec, err := extraction.LoadContext(ctx, e.Ledger(), e.BaseCurrency(), cfg.Extraction.ChequeKeywords)
			if err != nil {
				return err
			}
			candidates, err := extractor.Extract(ctx, in, ec)
			if err != nil {
				return err
			}
			if !reconcile {
				return printJSON(cmd.OutOrStdout(), candidates)
			}
			res, err := e.ReconcileBatch(ctx, candidates, pipeline.ReconcileContext{AccountID: account})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

// newExtractor returns the fixture extractor when fixture is set, and the
// Gemini extractor otherwise.
func newExtractor(ctx context.Context, fixture string, needsFetcher bool) (extraction.Extractor, func(), error) {
	noop := func() {}
	if fixture != "" {
		s, err := extraction.NewStaticExtractorFromFile(fixture)
		return s, noop, err
	}
	if !needsFetcher {
		ex, err := app.NewExtractor(ctx, cfg, nil)
		return ex, noop, err
	}
	client, err := gcsuploader.NewClient(ctx)
	if err != nil {
		return nil, noop, err
	}
	ex, err := app.NewExtractor(ctx, cfg, client)
	if err != nil {
		client.Close()
		return nil, noop, err
	}
	return ex, func() { client.Close() }, nil
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a JSON array of candidate events without committing",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		account, _ := cmd.Flags().GetString("account")
		currency, _ := cmd.Flags().GetString("base-currency")

		var candidates []domain.CandidateEvent
		if err := decodeInput(cmd, file, &candidates); err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			res, err := e.ReconcileBatch(cmd.Context(), candidates, pipeline.ReconcileContext{
				AccountID:    account,
				BaseCurrency: currency,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

// commitInput accepts the output of reconcile as is.
type commitInput struct {
	Candidates []domain.CandidateEvent    `json:"candidates"`
	Confirmed  []domain.CandidateEvent    `json:"confirmed"`
	Matches    map[int]domain.MatchResult `json:"matches"`
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit reconciled candidates to the ledger",
	Long: `commit persists the candidates of a reconcile result. The input is an
object with "confirmed" (or "candidates") and an optional "matches" map.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var in commitInput
		if err := decodeInput(cmd, file, &in); err != nil {
			return err
		}
		candidates := in.Candidates
		if len(candidates) == 0 {
			candidates = in.Confirmed
		}
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			res, err := e.Commit(cmd.Context(), candidates, in.Matches)
			if err != nil {
				return err
			}
			log.Info().Int("transactions", len(res.Transactions)).Int("cleared", len(res.Cleared)).Msg("batch committed")
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var discrepancyCmd = &cobra.Command{
	Use:   "discrepancy <transaction-id>",
	Short: "Check a committed snapshot against the recorded balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			s, err := e.DetectDiscrepancy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"discrepancy": false})
			}
			if !apply {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"discrepancy": true, "suggestion": s})
			}
			res, err := e.ApplyAdjustment(cmd.Context(), *s)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var adjustCmd = &cobra.Command{
	Use:   "adjust <account-id>",
	Short: "Bring an account balance to a target with an adjustment entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetStr, _ := cmd.Flags().GetString("target")
		dateStr, _ := cmd.Flags().GetString("date")

		target, err := decimal.NewFromString(targetStr)
		if err != nil {
			return fmt.Errorf("--target: %w", err)
		}
		date := civil.DateOf(time.Now())
		if dateStr != "" {
			if date, err = civil.ParseDate(dateStr); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
		}
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			res, err := e.AdjustBalance(cmd.Context(), args[0], target, date)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Manage obligation series",
}

var seriesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an obligation series from a JSON parameters file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		var p pipeline.SeriesParams
		if err := decodeInput(cmd, file, &p); err != nil {
			return err
		}
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			res, err := e.CreateObligationSeries(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var seriesValidateCmd = &cobra.Command{
	Use:   "validate <series-id>",
	Short: "Report date and numbering issues of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			res, err := e.ValidateSeries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var seriesNextCmd = &cobra.Command{
	Use:   "next <series-id>",
	Short: "Suggest the next cheque number and due date of a series",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			res, err := e.SuggestNext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts and their balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(e *pipeline.Engine) error {
			accounts, err := e.Ledger().Accounts(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), accounts)
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a receipt image to the storage bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bucket, _ := cmd.Flags().GetString("bucket")
		if bucket == "" {
			bucket = cfg.Storage.Bucket
		}
		if bucket == "" {
			return fmt.Errorf("--bucket or storage.bucket is required")
		}

		client, err := gcsuploader.NewClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		object := gcsuploader.ReceiptObjectName(time.Now().UTC(), filepath.Base(args[0]))
		uri, err := client.UploadFile(ctx, bucket, object, args[0])
		if err != nil {
			return err
		}
		log.Info().Str("gcs_uri", uri).Msg("receipt uploaded")
		return printJSON(cmd.OutOrStdout(), map[string]string{"gcs_uri": uri, "object_name": object})
	},
}

func init() {
	extractCmd.Flags().String("text", "", "source text such as an SMS or statement line")
	extractCmd.Flags().String("image", "", "path to a receipt image")
	extractCmd.Flags().String("image-uri", "", "gs:// URI of a receipt image")
	extractCmd.Flags().String("static", "", "model output fixture used instead of Gemini")
	extractCmd.Flags().String("account", "", "default account for the candidates")
	extractCmd.Flags().Bool("reconcile", false, "reconcile the extracted candidates")

	reconcileCmd.Flags().StringP("file", "f", "-", "candidates JSON file (- for stdin)")
	reconcileCmd.Flags().String("account", "", "default account for the candidates")
	reconcileCmd.Flags().String("base-currency", "", "home currency (engine default when empty)")

	commitCmd.Flags().StringP("file", "f", "-", "reconcile result JSON file (- for stdin)")

	discrepancyCmd.Flags().Bool("apply", false, "commit the suggested adjustment")

	adjustCmd.Flags().String("target", "", "target balance")
	adjustCmd.Flags().String("date", "", "adjustment date, YYYY-MM-DD (today when empty)")
	_ = adjustCmd.MarkFlagRequired("target")

	seriesCreateCmd.Flags().StringP("file", "f", "-", "series parameters JSON file (- for stdin)")
	seriesCmd.AddCommand(seriesCreateCmd, seriesValidateCmd, seriesNextCmd)

	uploadCmd.Flags().String("bucket", "", "bucket name (storage.bucket when empty)")
}
