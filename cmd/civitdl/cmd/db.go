package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"civitdl/internal/database"
	"civitdl/internal/errs"
	"civitdl/internal/helpers"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the download ledger",
	Long:  `View, search, verify, or remove entries recorded by the download command.`,
}

var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "List every recorded download",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(db *database.DB) error {
			entries, err := db.Entries()
			if err != nil {
				return err
			}
			printEntries(cmd, entries)
			return nil
		})
	},
}

var dbSearchCmd = &cobra.Command{
	Use:   "search <model name>",
	Short: "List recorded downloads whose model name contains the query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.ToLower(args[0])
		return withLedger(func(db *database.DB) error {
			entries, err := db.Entries()
			if err != nil {
				return err
			}
			var matches []models.DatabaseEntry
			for _, e := range entries {
				if strings.Contains(strings.ToLower(e.ModelName), query) {
					matches = append(matches, e)
				}
			}
			printEntries(cmd, matches)
			return nil
		})
	},
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that recorded model files still exist and match their hashes",
	Args:  cobra.NoArgs,
	RunE:  runDbVerify,
}

var dbDeleteCmd = &cobra.Command{
	Use:   "delete <version id>...",
	Short: "Forget recorded versions so they are downloaded again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(db *database.DB) error {
			for _, id := range args {
				if _, err := strconv.Atoi(id); err != nil {
					return errs.Inputf("Invalid version id %q", id)
				}
				if err := db.Delete(database.VersionKey(id)); err != nil {
					return fmt.Errorf("deleting version %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted version %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd, dbSearchCmd, dbVerifyCmd, dbDeleteCmd)

	dbVerifyCmd.Flags().Bool("check-hash", true, "Verify file hashes, not only existence")
}

func withLedger(fn func(db *database.DB) error) error {
	if globalConfig.DatabasePath == "" {
		return errs.Inputf("DatabasePath is not set in the configuration")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printEntries(cmd *cobra.Command, entries []models.DatabaseEntry) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Version ID\tModel\tVersion\tType\tBase Model\tCreator\tStatus\tWhen\tFile")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.VersionID, e.ModelName, e.VersionName, e.ModelType, e.BaseModel,
			e.Creator, e.Status, time.Unix(e.Timestamp, 0).Format(time.DateTime), e.FilePath)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer")
	}
	log.Infof("Displayed %d entries.", len(entries))
}

func runDbVerify(cmd *cobra.Command, args []string) error {
	checkHash, _ := cmd.Flags().GetBool("check-hash")
	return withLedger(func(db *database.DB) error {
		entries, err := db.Entries()
		if err != nil {
			return err
		}
		var ok, missing, mismatched int
		for _, e := range entries {
			if e.Status != models.StatusDownloaded {
				continue
			}
			fields := log.Fields{"versionId": e.VersionID, "path": e.FilePath}
			if _, err := os.Stat(e.FilePath); err != nil {
				missing++
				log.WithFields(fields).Error("[MISSING] File not found")
				continue
			}
			if checkHash && helpers.HasHashes(e.Hashes) && !helpers.CheckHash(e.FilePath, e.Hashes) {
				mismatched++
				log.WithFields(fields).Warn("[MISMATCH] File exists but hash does not match")
				continue
			}
			ok++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Verified %d file(s): %d ok, %d missing, %d mismatched\n", ok+missing+mismatched, ok, missing, mismatched)
		if missing+mismatched > 0 {
			return fmt.Errorf("%d recorded file(s) need attention, run download with --force to fetch them again", missing+mismatched)
		}
		return nil
	})
}
