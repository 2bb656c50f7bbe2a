package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/store"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Manage the case subjects the engine enriches",
}

// -- subjects add --

var subjectsAddCmd = &cobra.Command{
	Use:   "add <subject-id>",
	Short: "Create or replace a subject record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		subj := model.Subject{ID: args[0]}
		subj.FirstName, _ = cmd.Flags().GetString("first")
		subj.LastName, _ = cmd.Flags().GetString("last")
		subj.FullName, _ = cmd.Flags().GetString("name")
		subj.DOB, _ = cmd.Flags().GetString("dob")
		subj.Phone, _ = cmd.Flags().GetString("phone")
		if subj.FullName == "" && subj.FirstName != "" {
			subj.FullName = strings.TrimSpace(subj.FirstName + " " + subj.LastName)
		}

		if err := env.Store.PutSubject(ctx, &subj); err != nil {
			return err
		}
		fmt.Printf("Saved subject %s\n", subj.ID)
		return nil
	},
}

// -- subjects show --

var subjectsShowCmd = &cobra.Command{
	Use:   "show <subject-id>",
	Short: "Print a subject record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		subj, err := env.Store.GetSubject(ctx, args[0])
		if err != nil {
			return err
		}
		if subj == nil {
			return eris.Errorf("subject %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(subj)
	},
}

// -- subjects import --

var subjectsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Bulk-load subjects from a CSV export",
	Long:  "Imports subjects from a CSV with an id column plus any of: first_name, last_name, full_name, dob, phone. On postgres the rows stream through COPY; on sqlite they are upserted one by one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open subjects CSV")
		}
		defer f.Close() //nolint:errcheck

		subjects, err := parseSubjectsCSV(f)
		if err != nil {
			return err
		}
		if len(subjects) == 0 {
			return eris.New("no subject rows in file")
		}

		start := time.Now()
		if pg, ok := env.Store.(*store.PostgresStore); ok {
			n, err := pg.BulkImportSubjects(ctx, subjects)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d subject(s) in %s\n", n, time.Since(start).Round(time.Millisecond))
			return nil
		}
		for i := range subjects {
			if err := env.Store.PutSubject(ctx, &subjects[i]); err != nil {
				return eris.Wrapf(err, "import subject %s", subjects[i].ID)
			}
		}
		zap.L().Info("subjects imported",
			zap.Int("count", len(subjects)),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Printf("Imported %d subject(s) in %s\n", len(subjects), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	subjectsAddCmd.Flags().String("first", "", "first name")
	subjectsAddCmd.Flags().String("last", "", "last name")
	subjectsAddCmd.Flags().String("name", "", "full name (derived from first/last when empty)")
	subjectsAddCmd.Flags().String("dob", "", "date of birth (YYYY-MM-DD)")
	subjectsAddCmd.Flags().String("phone", "", "booking phone number")

	subjectsCmd.AddCommand(subjectsAddCmd)
	subjectsCmd.AddCommand(subjectsShowCmd)
	subjectsCmd.AddCommand(subjectsImportCmd)
	rootCmd.AddCommand(subjectsCmd)
}

// parseSubjectsCSV reads subject rows from r. Rows without an id are
// skipped; unknown columns are ignored.
func parseSubjectsCSV(r io.Reader) ([]model.Subject, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read CSV header")
	}
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIdx["id"]; !ok {
		return nil, eris.New("subjects CSV is missing the id column")
	}

	field := func(record []string, name string) string {
		idx, ok := colIdx[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var subjects []model.Subject
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read CSV row")
		}

		id := field(record, "id")
		if id == "" {
			continue
		}
		subj := model.Subject{
			ID:        id,
			FirstName: field(record, "first_name"),
			LastName:  field(record, "last_name"),
			FullName:  field(record, "full_name"),
			DOB:       field(record, "dob"),
			Phone:     field(record, "phone"),
		}
		if subj.FullName == "" && subj.FirstName != "" {
			subj.FullName = strings.TrimSpace(subj.FirstName + " " + subj.LastName)
		}
		subjects = append(subjects, subj)
	}
	return subjects, nil
}
