package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/beansack/internal/domain"
	"github.com/kailas-cloud/beansack/internal/domain/search/criteria"
	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
	"github.com/kailas-cloud/beansack/internal/domain/search/result"
	indexuc "github.com/kailas-cloud/beansack/internal/usecase/index"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [collection...]",
	Short: "Create missing indexes and report drift",
	Long:  `Reconciles the named collections, or every declared collection when none is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			var (
				reports []indexuc.Report
				err     error
			)
			if len(args) == 0 {
				reports, err = a.indexes.ReconcileAll(ctx)
			} else {
				var errs []error
				for _, name := range args {
					rep, rerr := a.indexes.Reconcile(ctx, name)
					reports = append(reports, rep)
					errs = append(errs, rerr)
				}
				err = errors.Join(errs...)
			}
			printReports(reports)
			return err
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [collection...]",
	Short: "Compare declared indexes with the store without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			names := args
			if len(names) == 0 {
				names = a.registry.Collections()
			}
			reports := make([]indexuc.Report, 0, len(names))
			for _, name := range names {
				rep, err := a.indexes.Inspect(ctx, name)
				if err != nil && !errors.Is(err, domain.ErrDriftDetected) {
					return err
				}
				reports = append(reports, rep)
			}
			printReports(reports)
			return nil
		})
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop <collection> <index>",
	Short: "Drop a live index; the declaration is kept",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.indexes.Drop(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Index '%s' dropped from %s\n", args[1], args[0])
			return nil
		})
	},
}

var retireCmd = &cobra.Command{
	Use:   "retire <collection> <index>",
	Short: "Remove an index declaration and drop its live index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.registry.Retire(ctx, args[0], args[1]); err != nil {
				return err
			}
			// the live index may already be gone
			if err := a.indexes.Drop(ctx, args[0], args[1]); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			fmt.Printf("Index '%s' retired from %s\n", args[1], args[0])
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <collection>",
	Short: "Run a hybrid search",
	Example: `  beansackctl search beans --filter kind:eq:news
  beansackctl search beans --text espresso --filter updated:gte:1700000000
  beansackctl search concepts --vector-file q.json --field embeddings --top-k 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		filters, _ := cmd.Flags().GetStringArray("filter")
		vectorFile, _ := cmd.Flags().GetString("vector-file")
		field, _ := cmd.Flags().GetString("field")
		topK, _ := cmd.Flags().GetInt("top-k")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		limit, _ := cmd.Flags().GetInt("limit")

		var vec *criteria.Vector
		if vectorFile != "" {
			q, err := readVector(vectorFile)
			if err != nil {
				return err
			}
			vec = &criteria.Vector{Field: field, Query: q, TopK: topK, MinScore: minScore}
		}

		return withApp(func(ctx context.Context, a *app) error {
			col, err := a.registry.Describe(args[0])
			if err != nil {
				return err
			}
			conds := make([]filter.Condition, 0, len(filters))
			for _, f := range filters {
				c, err := parseCondition(col, f)
				if err != nil {
					return err
				}
				conds = append(conds, c)
			}
			expr, err := filter.New(conds...)
			if err != nil {
				return err
			}
			c, err := criteria.New(vec, text, expr, limit, nil)
			if err != nil {
				return err
			}
			hits, err := a.search.Search(ctx, args[0], c)
			if err != nil {
				return err
			}
			printHits(hits)
			return nil
		})
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <bean-id>...",
	Short: "List the concepts mapped to beans, most recent first",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			hits, err := a.search.Related(ctx, args, limit)
			if err != nil {
				return err
			}
			printHits(hits)
			return nil
		})
	},
}

var beansCmd = &cobra.Command{
	Use:     "beans <keyphrase>",
	Short:   "List the beans linked to concepts matching a keyphrase, most recent first",
	Example: `  beansackctl beans "solid-state batteries" --concepts 5 --limit 10`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		concepts, _ := cmd.Flags().GetInt("concepts")
		limit, _ := cmd.Flags().GetInt("limit")
		c, err := criteria.New(nil, args[0], filter.Expression{}, concepts, nil)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			hits, err := a.search.RelatedBeans(ctx, c, limit)
			if err != nil {
				return err
			}
			printHits(hits)
			return nil
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <collection> <file>",
	Short: "Store documents from a JSON file (one object or an array)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		docs, err := decodeDocuments(data)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			for _, d := range docs {
				if err := a.store.PutDocument(ctx, args[0], d); err != nil {
					return fmt.Errorf("put %s: %w", d.ID(), err)
				}
			}
			fmt.Printf("%d documents stored in %s\n", len(docs), args[0])
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().String("text", "", "full-text query")
	searchCmd.Flags().StringArray("filter", nil, "condition field:op:value (repeatable; in takes comma-separated values)")
	searchCmd.Flags().String("vector-file", "", "JSON file holding the query vector")
	searchCmd.Flags().String("field", "", "vector field to search")
	searchCmd.Flags().Int("top-k", 0, "nearest neighbours to fetch (default: limit)")
	searchCmd.Flags().Float64("min-score", 0, "drop neighbours less similar than this (0..1)")
	searchCmd.Flags().Int("limit", 0, "maximum number of results")

	relatedCmd.Flags().Int("limit", 0, "maximum number of concepts")

	beansCmd.Flags().Int("concepts", 0, "maximum number of matching concepts to follow")
	beansCmd.Flags().Int("limit", 0, "maximum number of beans")
}

func readVector(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid vector in %s: %w", path, err)
	}
	return v, nil
}

func printReports(reports []indexuc.Report) {
	if outputJSON {
		data, _ := json.MarshalIndent(reports, "", "  ")
		fmt.Println(string(data))
		return
	}
	for _, rep := range reports {
		if rep.Collection == "" {
			continue
		}
		fmt.Printf("%s\n", rep.Collection)
		for _, res := range rep.Results {
			line := fmt.Sprintf("  %-28s %-7s %s", res.Index, res.Kind, res.Outcome)
			if res.Reason != "" {
				line += " (" + res.Reason + ")"
			}
			fmt.Println(line)
		}
		if len(rep.Unmanaged) > 0 {
			fmt.Printf("  unmanaged: %s\n", strings.Join(rep.Unmanaged, ", "))
		}
	}
}

func printHits(hits []result.Hit) {
	if outputJSON {
		type hitJSON struct {
			ID          string  `json:"id"`
			Score       float64 `json:"score"`
			VectorScore float64 `json:"vector_score"`
			TextScore   float64 `json:"text_score"`
			Updated     int64   `json:"updated,omitempty"`
		}
		out := make([]hitJSON, len(hits))
		for i, h := range hits {
			out[i] = hitJSON{h.ID(), h.Score(), h.VectorScore(), h.TextScore(), h.Updated()}
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("Found %d results\n", len(hits))
	for i, h := range hits {
		fmt.Printf("%3d. %s  score=%.4f\n", i+1, h.ID(), h.Score())
	}
}
