// Package main is the entry point for the OPTIMADE gateway admin CLI.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/materials-consortia/optimade-gateway/internal/api/types"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	serverURL string
	output    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "optimade-gateway-admin",
		Short: "Admin CLI for the OPTIMADE gateway",
		Long:  `A command-line tool for managing databases, gateways and queries of a running OPTIMADE gateway.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:5000", "Gateway server URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")

	// Database commands
	databaseCmd := &cobra.Command{
		Use:     "database",
		Aliases: []string{"db"},
		Short:   "Manage upstream databases",
	}

	databaseListCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered databases",
		RunE:  listDatabases,
	}

	databaseGetCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a database by id",
		Args:  cobra.ExactArgs(1),
		RunE:  getDatabase,
	}

	databaseRegisterCmd := &cobra.Command{
		Use:   "register",
		Short: "Register an upstream database",
		RunE:  registerDatabase,
	}
	databaseRegisterCmd.Flags().String("id", "", "Database id (derived from URL when empty)")
	databaseRegisterCmd.Flags().String("name", "", "Display name")
	databaseRegisterCmd.Flags().String("base-url", "", "OPTIMADE base URL without the version segment (required)")
	_ = databaseRegisterCmd.MarkFlagRequired("base-url")

	databaseCmd.AddCommand(databaseListCmd, databaseGetCmd, databaseRegisterCmd)

	// Gateway commands
	gatewayCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage gateways",
	}

	gatewayListCmd := &cobra.Command{
		Use:   "list",
		Short: "List gateways",
		RunE:  listGateways,
	}

	gatewayGetCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a gateway by id",
		Args:  cobra.ExactArgs(1),
		RunE:  getGateway,
	}

	gatewayCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Resolve or create a gateway for a database set",
		RunE:  createGateway,
	}
	gatewayCreateCmd.Flags().String("id", "", "Explicit gateway id (bypasses interning)")
	gatewayCreateCmd.Flags().StringSlice("database-ids", nil, "Registered database ids (required)")
	_ = gatewayCreateCmd.MarkFlagRequired("database-ids")

	gatewayCmd.AddCommand(gatewayListCmd, gatewayGetCmd, gatewayCreateCmd)

	// Query commands
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Inspect federated queries",
	}

	queryListCmd := &cobra.Command{
		Use:   "list",
		Short: "List query records",
		RunE:  listQueries,
	}

	queryGetCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a query record by id",
		Args:  cobra.ExactArgs(1),
		RunE:  getQuery,
	}

	queryCreateCmd := &cobra.Command{
		Use:   "create <gateway-id>",
		Short: "Start an asynchronous query against a gateway",
		Args:  cobra.ExactArgs(1),
		RunE:  createQuery,
	}
	queryCreateCmd.Flags().String("filter", "", "OPTIMADE filter string")
	queryCreateCmd.Flags().Int("page-limit", 0, "Per-database page size")
	queryCreateCmd.Flags().Int("page-offset", 0, "Per-database page offset")

	queryCmd.AddCommand(queryListCmd, queryGetCmd, queryCreateCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("optimade-gateway-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}

	rootCmd.AddCommand(databaseCmd, gatewayCmd, queryCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func apiGet(path string, out any) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func apiPost(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var errResp types.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && len(errResp.Errors) > 0 {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Errors[0].Detail)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listDatabases(cmd *cobra.Command, args []string) error {
	var resp types.DatabasesResponse
	if err := apiGet("/databases", &resp); err != nil {
		return err
	}
	if output == "json" {
		return printJSON(resp)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBASE URL\tCREATED")
	for _, db := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", db.ID, db.Name, db.BaseURL, db.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func getDatabase(cmd *cobra.Command, args []string) error {
	var resp types.DatabaseResponse
	if err := apiGet("/databases/"+args[0], &resp); err != nil {
		return err
	}
	return printJSON(resp.Data)
}

func registerDatabase(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	name, _ := cmd.Flags().GetString("name")
	baseURL, _ := cmd.Flags().GetString("base-url")

	var resp types.DatabaseResponse
	err := apiPost("/databases", types.DatabaseInput{ID: id, Name: name, BaseURL: baseURL}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("registered database %s\n", resp.Data.ID)
	return nil
}

func listGateways(cmd *cobra.Command, args []string) error {
	var resp types.GatewaysResponse
	if err := apiGet("/gateways", &resp); err != nil {
		return err
	}
	if output == "json" {
		return printJSON(resp)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATABASES\tCREATED")
	for _, gw := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\n", gw.ID, strings.Join(gw.DatabaseIDSet, ","), gw.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func getGateway(cmd *cobra.Command, args []string) error {
	var resp types.GatewayResponse
	if err := apiGet("/gateways/"+args[0], &resp); err != nil {
		return err
	}
	return printJSON(resp.Data)
}

func createGateway(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	databaseIDs, _ := cmd.Flags().GetStringSlice("database-ids")

	var resp types.GatewayResponse
	err := apiPost("/gateways", types.GatewayCreateRequest{ID: id, DatabaseIDs: databaseIDs}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("gateway %s (databases: %s)\n", resp.Data.ID, strings.Join(resp.Data.DatabaseIDSet, ","))
	return nil
}

func listQueries(cmd *cobra.Command, args []string) error {
	var resp types.QueriesResponse
	if err := apiGet("/queries", &resp); err != nil {
		return err
	}
	if output == "json" {
		return printJSON(resp)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGATEWAY\tSTATE\tLAST UPDATED")
	for _, q := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.ID, q.GatewayID, q.State, q.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func getQuery(cmd *cobra.Command, args []string) error {
	var resp types.QueryResponse
	if err := apiGet("/queries/"+args[0], &resp); err != nil {
		return err
	}
	return printJSON(resp.Data)
}

func createQuery(cmd *cobra.Command, args []string) error {
	filter, _ := cmd.Flags().GetString("filter")
	pageLimit, _ := cmd.Flags().GetInt("page-limit")
	pageOffset, _ := cmd.Flags().GetInt("page-offset")

	req := types.QueryCreateRequest{Endpoint: "structures"}
	req.QueryParameters.Filter = filter
	req.QueryParameters.PageLimit = pageLimit
	req.QueryParameters.PageOffset = pageOffset

	var resp types.QueryResponse
	if err := apiPost("/gateways/"+args[0]+"/queries", req, &resp); err != nil {
		return err
	}
	fmt.Printf("query %s created (state: %s)\n", resp.Data.ID, resp.Data.State)
	fmt.Printf("poll with: optimade-gateway-admin query get %s\n", resp.Data.ID)
	return nil
}
