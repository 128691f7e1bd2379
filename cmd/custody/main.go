package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evidlock/custodyledger/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL   string
	cfgFile     string
	bearerToken string
	actor       string
	role        string
	insecure    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Evidence custody ledger CLI",
	Long: `custody is the command-line interface for the evidence custody ledger.

It registers evidence, drives custody transitions, and reads audit trails,
version history, and integrity reports from a custodyd server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.custody")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8420"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
		if actor == "" {
			actor = viper.GetString("actor")
		}
		if role == "" {
			role = viper.GetString("role")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.custody/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "custodyd base URL (default http://localhost:8420)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "bearer role token")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "acting person recorded on the audit trail")
	rootCmd.PersistentFlags().StringVar(&role, "role", "", "declared role (ForensicTechnician or EvidenceManager)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (development only)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	return client.New(serverURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func millis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func printEvidence(ev *client.Evidence) {
	fmt.Printf("Evidence ID:  %s\n", ev.EvidenceID)
	fmt.Printf("Case hash:    %s\n", ev.CaseIDHash)
	fmt.Printf("Status:       %s\n", ev.Status)
	fmt.Printf("Custodian:    %s\n", ev.CurrentCustodian)
	fmt.Printf("Created by:   %s (%s)\n", ev.CreatedBy, ev.Role)
	fmt.Printf("Created at:   %s\n", millis(ev.CreatedAt))
	fmt.Printf("Updated at:   %s\n", millis(ev.UpdatedAt))
	if ev.Description != "" {
		fmt.Printf("Description:  %s\n", ev.Description)
	}
	if ev.ImageHash != "" {
		fmt.Printf("Image hash:   %s\n", ev.ImageHash)
	}
	if ev.ImageFilename != "" {
		fmt.Printf("Image file:   %s\n", ev.ImageFilename)
	}
}

// ── create ───────────────────────────────────────────────────────────────────

var (
	createCaseID    string
	createDesc      string
	createImageHash string
	createImageFile string
	createCustodian string
	createFormat    string
)

var createCmd = &cobra.Command{
	Use:   "create <evidence-id>",
	Short: "Register a new evidence record",
	Long: `Create registers a new evidence record under the given id.

The raw case id is fingerprinted server-side; only the salted hash is
stored. Bind a disk image by hash:

  custody upload HD-2031 drive.img           # prints the sha256
  custody create HD-2031 --case CASE-4412 \
      --desc "seized laptop drive" --image-hash <sha256> --image-file drive.img`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createCaseID, "case", "", "raw case id (required; never stored verbatim)")
	createCmd.Flags().StringVar(&createDesc, "desc", "", "evidence description")
	createCmd.Flags().StringVar(&createImageHash, "image-hash", "", "sha256 of the associated disk image")
	createCmd.Flags().StringVar(&createImageFile, "image-file", "", "filename of the associated disk image")
	createCmd.Flags().StringVar(&createCustodian, "custodian", "", "initial custodian (defaults to the actor)")
	createCmd.Flags().StringVar(&createFormat, "format", "text", "Output format: text or json")
	createCmd.MarkFlagRequired("case") //nolint:errcheck
}

func runCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	res, err := c.CreateEvidence(context.Background(), client.CreateEvidenceRequest{
		EvidenceID:    args[0],
		CaseID:        createCaseID,
		Description:   createDesc,
		ImageHash:     createImageHash,
		ImageFilename: createImageFile,
		Custodian:     createCustodian,
		Actor:         actor,
		Role:          role,
	})
	if err != nil {
		return err
	}

	if createFormat == "json" {
		return printJSON(res)
	}
	printEvidence(res.Evidence)
	fmt.Printf("Transaction:  %s\n", res.TransactionID)
	return nil
}

// ── checkin ──────────────────────────────────────────────────────────────────

var (
	checkinCustodian string
	checkinNotes     string
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <evidence-id>",
	Short: "Record a custody check-in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.CheckIn(context.Background(), args[0], client.CheckInRequest{
			Custodian: checkinCustodian,
			Notes:     checkinNotes,
			Actor:     actor,
			Role:      role,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s checked in to %s (tx %s)\n",
			res.Evidence.EvidenceID, res.Evidence.CurrentCustodian, res.TransactionID)
		return nil
	},
}

func init() {
	checkinCmd.Flags().StringVar(&checkinCustodian, "custodian", "", "new custodian (keeps the current one when empty)")
	checkinCmd.Flags().StringVar(&checkinNotes, "notes", "", "free-form notes for the audit trail")
}

// ── transfer ─────────────────────────────────────────────────────────────────

var (
	transferTo    string
	transferFrom  string
	transferNotes string
)

var transferCmd = &cobra.Command{
	Use:   "transfer <evidence-id>",
	Short: "Transfer custody to another custodian",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Transfer(context.Background(), args[0], client.TransferRequest{
			ToCustodian:   transferTo,
			FromCustodian: transferFrom,
			Notes:         transferNotes,
			Actor:         actor,
			Role:          role,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s transferred to %s (tx %s)\n",
			res.Evidence.EvidenceID, res.Evidence.CurrentCustodian, res.TransactionID)
		return nil
	},
}

func init() {
	transferCmd.Flags().StringVar(&transferTo, "to", "", "receiving custodian (required)")
	transferCmd.Flags().StringVar(&transferFrom, "from", "", "releasing custodian (defaults to the current one)")
	transferCmd.Flags().StringVar(&transferNotes, "notes", "", "free-form notes for the audit trail")
	transferCmd.MarkFlagRequired("to") //nolint:errcheck
}

// ── remove ───────────────────────────────────────────────────────────────────

var removeNotes string

var removeCmd = &cobra.Command{
	Use:   "remove <evidence-id>",
	Short: "Remove evidence from active custody",
	Long: `Remove marks an evidence item as removed from active custody.

The record and its audit trail remain readable. Repeating the removal is
allowed and appends another event with a fresh timestamp.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Remove(context.Background(), args[0], client.RemoveRequest{
			Notes: removeNotes,
			Actor: actor,
			Role:  role,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s removed from custody (tx %s)\n", res.Evidence.EvidenceID, res.TransactionID)
		return nil
	},
}

func init() {
	removeCmd.Flags().StringVar(&removeNotes, "notes", "", "free-form notes for the audit trail")
}

// ── show ─────────────────────────────────────────────────────────────────────

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show <evidence-id>",
	Short: "Show the current evidence record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ev, err := c.GetEvidence(context.Background(), args[0])
		if err != nil {
			return err
		}
		if showFormat == "json" {
			return printJSON(ev)
		}
		printEvidence(ev)
		return nil
	},
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "text", "Output format: text or json")
}

// ── events ───────────────────────────────────────────────────────────────────

var eventsFormat string

var eventsCmd = &cobra.Command{
	Use:   "events <evidence-id>",
	Short: "Show the custody trail, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		events, err := c.GetEvents(context.Background(), args[0])
		if err != nil {
			return err
		}
		if eventsFormat == "json" {
			return printJSON(events)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tACTOR\tFROM\tTO\tNOTES")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				millis(ev.Timestamp), ev.EventType, ev.PerformedBy,
				ev.FromCustodian, ev.ToCustodian, ev.Notes)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsFormat, "format", "text", "Output format: text or json")
}

// ── history ──────────────────────────────────────────────────────────────────

var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history <evidence-id>",
	Short: "Show every persisted version of the record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		history, err := c.GetHistory(context.Background(), args[0])
		if err != nil {
			return err
		}
		if historyFormat == "json" {
			return printJSON(history)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTRANSACTION\tSTATUS\tCUSTODIAN\tDELETED")
		for _, h := range history {
			status, custodian := "", ""
			if h.Record != nil {
				status = h.Record.Status
				custodian = h.Record.CurrentCustodian
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
				millis(h.Timestamp), h.TxID, status, custodian, h.IsDelete)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "text", "Output format: text or json")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <evidence-id>",
	Short: "Check the stored disk image against the recorded hash",
	Long: `Verify recomputes the stored artifact's SHA-256 and compares it with the
hash recorded on the evidence record.

Exit status is non-zero when the artifact is tampered, so the command can
gate scripted workflows.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		report, err := c.Verify(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Outcome:   %s\n", report.Outcome)
		if report.RecordedHash != "" {
			fmt.Printf("Recorded:  %s\n", report.RecordedHash)
		}
		if report.ComputedHash != "" {
			fmt.Printf("Computed:  %s\n", report.ComputedHash)
		}
		if report.Detail != "" {
			fmt.Printf("Detail:    %s\n", report.Detail)
		}

		if report.Outcome == "tampered" {
			return fmt.Errorf("artifact for %s does not match the recorded hash", args[0])
		}
		return nil
	},
}

// ── upload / download ────────────────────────────────────────────────────────

var uploadCmd = &cobra.Command{
	Use:   "upload <evidence-id> <file>",
	Short: "Upload a disk image and print its server-computed sha256",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck

		res, err := c.UploadImage(context.Background(), args[0], filepath.Base(args[1]), f)
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s (%d bytes)\n", res.Filename, res.Size)
		fmt.Printf("sha256: %s\n", res.SHA256)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <evidence-id> <file>",
	Short: "Download the stored disk image to a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		f, err := os.Create(args[1])
		if err != nil {
			return err
		}

		sum, err := c.DownloadImage(context.Background(), args[0], f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(args[1]) //nolint:errcheck
			return err
		}
		fmt.Printf("Wrote %s\n", args[1])
		if sum != "" {
			fmt.Printf("sha256: %s\n", sum)
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("custody", version)
	},
}
