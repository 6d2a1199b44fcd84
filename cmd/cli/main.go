package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"chronozoom/internal/auth"
	"chronozoom/internal/grpcserver"
	"chronozoom/pkg/models"
	"chronozoom/pkg/utils"
)

var (
	baseURL   string
	tokenPath string
	timeout   time.Duration

	qStart, qEnd, qMinSpan float64
	qAncestor              string
	qMax                   int

	tlID, tlParent string
	tlTitle        string
	tlRegime       string
	tlFrom, tlTo   float64

	tokNameID, tokIDP, tokName, tokEmail string

	userName, userEmail string

	feedTCP  string
	grpcAddr string

	rootCmd = &cobra.Command{
		Use:           "chronozoom",
		Short:         "Command line client for the chronozoom timeline service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token with the server's configured secret and save it",
		RunE:  runToken,
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearToken(tokenPath)
		},
	}

	timelinesCmd = &cobra.Command{
		Use:   "timelines <super> <collection>",
		Short: "Fetch the timeline tree of a collection",
		Args:  cobra.ExactArgs(2),
		RunE:  runTimelines,
	}
	searchCmd = &cobra.Command{
		Use:   "search <super> <collection> <term>",
		Short: "Search titles in a collection",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []models.SearchResult
			endpoint := client().collectionURL(args[0], args[1], "search") + "?searchTerm=" + url.QueryEscape(args[2])
			return getAndPrint(cmd.Context(), endpoint, &out)
		},
	}
	toursCmd = &cobra.Command{
		Use:   "tours <super> <collection>",
		Short: "List the tours of a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []models.Tour
			return getAndPrint(cmd.Context(), client().collectionURL(args[0], args[1], "tours"), &out)
		},
	}
	collectionsCmd = &cobra.Command{
		Use:   "collections <super>",
		Short: "List the collections of a super collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []models.Collection
			return getAndPrint(cmd.Context(), client().collectionURL(args[0], "collections", ""), &out)
		},
	}

	putTimelineCmd = &cobra.Command{
		Use:   "put-timeline <super> <collection>",
		Short: "Create or update a timeline",
		Args:  cobra.ExactArgs(2),
		RunE:  runPutTimeline,
	}
	deleteTimelineCmd = &cobra.Command{
		Use:   "delete-timeline <super> <collection> <id>",
		Short: "Delete a timeline and its subtree",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[2])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[2], err)
			}
			var out map[string]any
			c := client()
			if err := c.doJSON(cmd.Context(), http.MethodDelete, c.collectionURL(args[0], args[1], "timeline"), map[string]any{"id": id}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Manage the current user",
	}
	userPutCmd = &cobra.Command{
		Use:   "put",
		Short: "Create or update the current user and print its default collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			payload := map[string]string{}
			if userName != "" {
				payload["display_name"] = userName
			}
			if userEmail != "" {
				payload["email"] = userEmail
			}
			var out map[string]any
			if err := c.doJSON(cmd.Context(), http.MethodPut, c.baseURL+"/api/user", payload, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	userGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Show the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out models.User
			return getAndPrint(cmd.Context(), client().baseURL+"/api/user", &out)
		},
	}
	userDeleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Delete the current user and everything they own",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			var out map[string]any
			if err := c.doJSON(cmd.Context(), http.MethodDelete, c.baseURL+"/api/user", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	feedCmd = &cobra.Command{
		Use:   "feed",
		Short: "Follow the change feed (websocket by default, TCP with --tcp)",
		RunE:  runFeed,
	}

	rpcCmd = &cobra.Command{
		Use:   "rpc <super> <collection>",
		Short: "Fetch the timeline tree over gRPC",
		Args:  cobra.ExactArgs(2),
		RunE:  runRPC,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base", envOr("CHRONOZOOM_URL", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&tokenPath, "token-file", defaultTokenPath(), "path of the saved bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")

	tokenCmd.Flags().StringVar(&tokNameID, "nameid", "", "external name identifier")
	tokenCmd.Flags().StringVar(&tokIDP, "idp", "dev", "identity provider")
	tokenCmd.Flags().StringVar(&tokName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokEmail, "email", "", "email")
	_ = tokenCmd.MarkFlagRequired("nameid")

	timelinesCmd.Flags().Float64Var(&qStart, "start", 0, "window start year")
	timelinesCmd.Flags().Float64Var(&qEnd, "end", 0, "window end year")
	timelinesCmd.Flags().Float64Var(&qMinSpan, "minspan", 0, "minimum span in years")
	timelinesCmd.Flags().StringVar(&qAncestor, "ancestor", "", "common ancestor timeline id")
	timelinesCmd.Flags().IntVar(&qMax, "max", 0, "maximum number of timelines")

	putTimelineCmd.Flags().StringVar(&tlID, "id", "", "timeline id (update)")
	putTimelineCmd.Flags().StringVar(&tlParent, "parent", "", "parent timeline id (create)")
	putTimelineCmd.Flags().StringVar(&tlTitle, "title", "", "title")
	putTimelineCmd.Flags().StringVar(&tlRegime, "regime", "", "regime")
	putTimelineCmd.Flags().Float64Var(&tlFrom, "from", 0, "from year")
	putTimelineCmd.Flags().Float64Var(&tlTo, "to", 0, "to year")
	_ = putTimelineCmd.MarkFlagRequired("title")
	_ = putTimelineCmd.MarkFlagRequired("from")
	_ = putTimelineCmd.MarkFlagRequired("to")

	userPutCmd.Flags().StringVar(&userName, "name", "", "display name")
	userPutCmd.Flags().StringVar(&userEmail, "email", "", "email")
	userCmd.AddCommand(userPutCmd, userGetCmd, userDeleteCmd)

	feedCmd.Flags().StringVar(&feedTCP, "tcp", "", "TCP feed address instead of the websocket")

	rpcCmd.Flags().StringVar(&grpcAddr, "addr", "127.0.0.1:9090", "gRPC server address")
	rpcCmd.Flags().IntVar(&qMax, "max", 0, "maximum number of timelines")

	rootCmd.AddCommand(tokenCmd, logoutCmd, timelinesCmd, searchCmd, toursCmd, collectionsCmd,
		putTimelineCmd, deleteTimelineCmd, userCmd, feedCmd, rpcCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("chronozoom: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *apiClient {
	token, err := readToken(tokenPath)
	if err != nil {
		log.Printf("ignoring unreadable token file %s: %v", tokenPath, err)
	}
	return &apiClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
	}
}

func getAndPrint(ctx context.Context, endpoint string, out any) error {
	if err := client().doJSON(ctx, http.MethodGet, endpoint, nil, out); err != nil {
		return err
	}
	return printJSON(out)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return err
	}
	ts := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}
	token, exp, err := ts.Sign(&models.User{
		DisplayName:      tokName,
		Email:            tokEmail,
		NameIdentifier:   tokNameID,
		IdentityProvider: tokIDP,
	})
	if err != nil {
		return err
	}
	if err := saveToken(tokenPath, token); err != nil {
		return err
	}
	fmt.Printf("token saved to %s (expires %s)\n", tokenPath, exp.Format(time.RFC3339))
	return nil
}

func runTimelines(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	flags := cmd.Flags()
	if flags.Changed("start") {
		q.Set("start", strconv.FormatFloat(qStart, 'f', -1, 64))
	}
	if flags.Changed("end") {
		q.Set("end", strconv.FormatFloat(qEnd, 'f', -1, 64))
	}
	if flags.Changed("minspan") {
		q.Set("minspan", strconv.FormatFloat(qMinSpan, 'f', -1, 64))
	}
	if qAncestor != "" {
		q.Set("commonAncestor", qAncestor)
	}
	if qMax > 0 {
		q.Set("maxElements", strconv.Itoa(qMax))
	}

	endpoint := client().collectionURL(args[0], args[1], "timelines")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var out *models.Timeline
	return getAndPrint(cmd.Context(), endpoint, &out)
}

func runPutTimeline(cmd *cobra.Command, args []string) error {
	payload := map[string]any{
		"title":     tlTitle,
		"from_year": tlFrom,
		"to_year":   tlTo,
	}
	if tlRegime != "" {
		payload["regime"] = tlRegime
	}
	for key, raw := range map[string]string{"id": tlID, "parent_timeline_id": tlParent} {
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		payload[key] = id
	}

	c := client()
	var out map[string]any
	if err := c.doJSON(cmd.Context(), http.MethodPut, c.collectionURL(args[0], args[1], "timeline"), payload, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func runFeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	for {
		var err error
		if feedTCP != "" {
			err = followTCP(ctx, feedTCP)
		} else {
			err = followWebSocket(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[feed] disconnected: %v", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func followTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Printf("[feed] connected to %s", addr)
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		fmt.Println(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return net.ErrClosed
}

func followWebSocket(ctx context.Context) error {
	wsURL, err := websocketURL(baseURL, "/ws")
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Printf("[feed] connected to %s", wsURL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}

func runRPC(cmd *cobra.Command, args []string) error {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	req := &grpcserver.GetTimelinesRequest{
		CollectionName: grpcserver.CollectionName{SuperCollection: args[0], Collection: args[1]},
	}
	if qMax > 0 {
		req.MaxElements = &qMax
	}
	resp, err := grpcserver.NewClient(conn).GetTimelines(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(resp.Timeline)
}
