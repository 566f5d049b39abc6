package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/algosec/algosec-go/businessflow"
	"github.com/algosec/algosec-go/domain"
	"github.com/algosec/algosec-go/fireflow"
	"github.com/algosec/algosec-go/firewallanalyzer"
	"github.com/algosec/algosec-go/internal/auth"
	"github.com/spf13/cobra"
)

var (
	host     string
	user     string
	password string
	insecure bool
	verbose  bool
	timeout  time.Duration
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "algosec",
		Short: "Command line client for AlgoSec BusinessFlow, FireFlow and Firewall Analyzer",
		Long: `algosec talks to the AlgoSec suite: it creates and inspects
BusinessFlow application flows, opens FireFlow change requests and runs
Firewall Analyzer traffic simulation queries.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "", "AlgoSec server hostname (required)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "AlgoSec username (required)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "AlgoSec password (defaults to $ALGOSEC_PASSWORD)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall request timeout")

	rootCmd.AddCommand(newCreateFlowCmd())
	rootCmd.AddCommand(newGetFlowCmd())
	rootCmd.AddCommand(newCreateChangeRequestCmd())
	rootCmd.AddCommand(newGetChangeRequestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func resolvePassword() (string, error) {
	if host == "" || user == "" {
		return "", fmt.Errorf("--host and --user are required")
	}
	if password != "" {
		return password, nil
	}
	if env := os.Getenv("ALGOSEC_PASSWORD"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("password must be provided via --password or $ALGOSEC_PASSWORD")
}

func setupLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func newBusinessFlowClient() (*businessflow.Client, error) {
	pass, err := resolvePassword()
	if err != nil {
		return nil, err
	}
	opts := []businessflow.Option{businessflow.WithLogger(setupLogger())}
	if insecure {
		opts = append(opts, businessflow.WithInsecureSkipVerify())
	}
	return businessflow.NewClient(host, user, pass, opts...), nil
}

func newFireFlowClient() (*fireflow.Client, error) {
	pass, err := resolvePassword()
	if err != nil {
		return nil, err
	}
	opts := []fireflow.Option{fireflow.WithLogger(setupLogger())}
	if insecure {
		opts = append(opts, fireflow.WithInsecureSkipVerify())
	}
	return fireflow.NewClient(host, user, pass, opts...), nil
}

func newFirewallAnalyzerClient() (*firewallanalyzer.Client, error) {
	pass, err := resolvePassword()
	if err != nil {
		return nil, err
	}
	opts := []firewallanalyzer.Option{firewallanalyzer.WithLogger(setupLogger())}
	if insecure {
		opts = append(opts, firewallanalyzer.WithInsecureSkipVerify())
	}
	return firewallanalyzer.NewClient(host, user, pass, opts...), nil
}

func newCreateFlowCmd() *cobra.Command {
	var (
		appName             string
		flowName            string
		sources             []string
		destinations        []string
		services            []string
		networkUsers        []string
		networkApplications []string
		comment             string
		skipContained       bool
		applyDraft          bool
	)

	cmd := &cobra.Command{
		Use:   "create-flow",
		Short: "Create an application flow in BusinessFlow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newBusinessFlowClient()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			revisionID, err := client.GetApplicationRevisionIDByName(ctx, appName)
			if err != nil {
				return fmt.Errorf("looking up application %q: %w", appName, err)
			}

			requested := domain.NewRequestedFlow(flowName, sources, destinations, networkUsers, networkApplications, services, comment)
			if err := client.ResolveFlow(ctx, requested); err != nil {
				return fmt.Errorf("resolving flow: %w", err)
			}

			if skipContained {
				contained, err := client.IsFlowContainedInApp(ctx, revisionID, requested)
				if err != nil {
					return fmt.Errorf("checking flow containment: %w", err)
				}
				if contained {
					fmt.Println("An existing flow already covers the requested traffic, nothing to do.")
					return nil
				}
			}

			flow, err := client.CreateApplicationFlow(ctx, revisionID, requested)
			if err != nil {
				return fmt.Errorf("creating flow: %w", err)
			}
			fmt.Printf("Created flow %s (ID %s)\n", flow.Name, flow.FlowID)

			if applyDraft {
				// Flow creation opened a new draft revision.
				revisionID, err = client.GetApplicationRevisionIDByName(ctx, appName)
				if err != nil {
					return fmt.Errorf("looking up draft revision: %w", err)
				}
				if err := client.ApplyApplicationDraft(ctx, revisionID); err != nil {
					return fmt.Errorf("applying draft: %w", err)
				}
				fmt.Println("Applied application draft.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appName, "app", "", "BusinessFlow application name (required)")
	cmd.Flags().StringVar(&flowName, "name", "", "Name of the new flow (required)")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Flow source, IP/subnet or object name (repeatable)")
	cmd.Flags().StringSliceVar(&destinations, "destination", nil, "Flow destination, IP/subnet or object name (repeatable)")
	cmd.Flags().StringSliceVar(&services, "service", nil, "Flow service, e.g. TCP/443 or a service object name (repeatable)")
	cmd.Flags().StringSliceVar(&networkUsers, "network-user", nil, "Network user (repeatable)")
	cmd.Flags().StringSliceVar(&networkApplications, "network-application", nil, "Network application (repeatable)")
	cmd.Flags().StringVar(&comment, "comment", "", "Flow comment")
	cmd.Flags().BoolVar(&skipContained, "skip-contained", true, "Skip creation when an existing flow already covers the traffic")
	cmd.Flags().BoolVar(&applyDraft, "apply-draft", false, "Apply the application draft after creating the flow")

	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("destination")
	cmd.MarkFlagRequired("service")

	return cmd
}

func newGetFlowCmd() *cobra.Command {
	var (
		appName  string
		flowName string
	)

	cmd := &cobra.Command{
		Use:   "get-flow",
		Short: "Show an application flow and its connectivity status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newBusinessFlowClient()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			revisionID, err := client.GetApplicationRevisionIDByName(ctx, appName)
			if err != nil {
				return fmt.Errorf("looking up application %q: %w", appName, err)
			}

			flow, err := client.GetFlowByName(ctx, revisionID, flowName)
			if err != nil {
				if errors.Is(err, domain.ErrFlowSearchEmpty) {
					return fmt.Errorf("no flow named %q in application %q", flowName, appName)
				}
				return err
			}

			fmt.Printf("Flow %s (ID %s)\n", flow.Name, flow.FlowID)
			fmt.Printf("  Sources:      %v\n", objectNames(flow.Sources))
			fmt.Printf("  Destinations: %v\n", objectNames(flow.Destinations))
			for _, service := range flow.Services {
				fmt.Printf("  Service:      %s %v\n", service.Name, service.Services)
			}

			connectivity, err := client.GetFlowConnectivity(ctx, revisionID, flow.FlowID.String())
			if err != nil {
				return fmt.Errorf("fetching connectivity: %w", err)
			}
			fmt.Printf("  Connectivity: %s\n", connectivity.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&appName, "app", "", "BusinessFlow application name (required)")
	cmd.Flags().StringVar(&flowName, "name", "", "Flow name (required)")
	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("name")

	return cmd
}

func objectNames(objects []domain.FlowObject) []string {
	names := make([]string, 0, len(objects))
	for _, object := range objects {
		names = append(names, object.Name)
	}
	return names
}

func newCreateChangeRequestCmd() *cobra.Command {
	var (
		subject      string
		requestor    string
		email        string
		description  string
		template     string
		sources      []string
		destinations []string
		services     []string
		drop         bool
	)

	cmd := &cobra.Command{
		Use:   "create-change-request",
		Short: "Open a traffic change request in FireFlow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newFireFlowClient()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			action := domain.ActionAllow
			if drop {
				action = domain.ActionDrop
			}

			ticketURL, err := client.CreateChangeRequest(ctx, fireflow.ChangeRequest{
				Subject:       subject,
				RequestorName: requestor,
				Email:         email,
				Description:   description,
				Template:      template,
				TrafficLines: []domain.TrafficLine{{
					Action:       action,
					Sources:      sources,
					Destinations: destinations,
					Services:     services,
				}},
			})
			if err != nil {
				return fmt.Errorf("creating change request: %w", err)
			}

			fmt.Printf("Created change request: %s\n", ticketURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Change request subject (required)")
	cmd.Flags().StringVar(&requestor, "requestor", "", "Requestor name (required)")
	cmd.Flags().StringVar(&email, "email", "", "Requestor email (required)")
	cmd.Flags().StringVar(&description, "description", "", "Change request description")
	cmd.Flags().StringVar(&template, "template", "", "FireFlow template name")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Traffic source (repeatable)")
	cmd.Flags().StringSliceVar(&destinations, "destination", nil, "Traffic destination (repeatable)")
	cmd.Flags().StringSliceVar(&services, "service", nil, "Traffic service, e.g. tcp/443 (repeatable)")
	cmd.Flags().BoolVar(&drop, "drop", false, "Request traffic to be dropped instead of allowed")

	cmd.MarkFlagRequired("subject")
	cmd.MarkFlagRequired("requestor")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("destination")
	cmd.MarkFlagRequired("service")

	return cmd
}

func newGetChangeRequestCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get-change-request",
		Short: "Show a FireFlow change request",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newFireFlowClient()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			ticket, err := client.GetChangeRequestByID(ctx, id)
			if err != nil {
				if errors.Is(err, domain.ErrChangeRequestNotFound) {
					return fmt.Errorf("no change request with ID %s", id)
				}
				return err
			}

			fmt.Printf("Ticket %s: %s\n", ticket.ID, ticket.Subject)
			fmt.Printf("  Status:    %s\n", ticket.Status)
			fmt.Printf("  Requestor: %s\n", ticket.Requestor)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Change request ID (required)")
	cmd.MarkFlagRequired("id")

	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		tokenURL     string
		clientID     string
		clientSecret string
		scopes       []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch a bearer token for the algobot API via OAuth2 client credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientSecret == "" {
				clientSecret = os.Getenv("ALGOBOT_CLIENT_SECRET")
			}
			if clientSecret == "" {
				return fmt.Errorf("client secret must be provided via --client-secret or $ALGOBOT_CLIENT_SECRET")
			}

			ctx, cancel := commandContext()
			defer cancel()

			token, err := auth.TokenSource(ctx, tokenURL, clientID, clientSecret, scopes).Token()
			if err != nil {
				return fmt.Errorf("fetching token: %w", err)
			}

			fmt.Println(token.AccessToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenURL, "token-url", "", "OAuth2 token endpoint (required)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (required)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (defaults to $ALGOBOT_CLIENT_SECRET)")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "OAuth2 scope (repeatable)")

	cmd.MarkFlagRequired("token-url")
	cmd.MarkFlagRequired("client-id")

	return cmd
}

func newQueryCmd() *cobra.Command {
	var (
		source      string
		destination string
		service     string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a traffic simulation query in Firewall Analyzer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newFirewallAnalyzerClient()
			if err != nil {
				return err
			}

			ctx, cancel := commandContext()
			defer cancel()

			result, err := client.ExecuteTrafficSimulationQuery(ctx, source, destination, service)
			if err != nil {
				return fmt.Errorf("running traffic simulation: %w", err)
			}

			fmt.Printf("Traffic %s -> %s (%s): %s\n", source, destination, service, result.Result)
			for state, devices := range result.DevicesByState {
				for _, device := range devices {
					fmt.Printf("  %-18s %s\n", state, device.Name)
				}
			}
			if result.QueryURL != "" {
				fmt.Printf("Details: %s\n", result.QueryURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Traffic source IP or subnet (required)")
	cmd.Flags().StringVar(&destination, "destination", "", "Traffic destination IP or subnet (required)")
	cmd.Flags().StringVar(&service, "service", "", "Traffic service, e.g. tcp/443 (required)")

	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("destination")
	cmd.MarkFlagRequired("service")

	return cmd
}
