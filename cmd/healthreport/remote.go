package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/health-report-parser/internal/server"
)

const remoteTimeout = 30 * time.Second

// dial connects to the daemon named by --addr.
func dial(cmd *cobra.Command) (*server.ParserClient, func(), error) {
	addr, _ := cmd.Flags().GetString("addr")
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return server.NewParserClient(conn), func() { _ = conn.Close() }, nil
}

func printStruct(cmd *cobra.Command, s *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

// remote runs one RPC with a request built from req.
func remote(cmd *cobra.Command, req map[string]any, rpc func(*server.ParserClient, context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)) error {
	client, closeConn, err := dial(cmd)
	if err != nil {
		return err
	}
	defer closeConn()
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()
	out, err := rpc(client, ctx, in)
	if err != nil {
		return err
	}
	return printStruct(cmd, out)
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Queue a report on the daemon and print the job ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{}
			if serverPath, _ := cmd.Flags().GetBool("server-path"); serverPath {
				req["path"] = args[0]
			} else {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				req["content"] = base64.StdEncoding.EncodeToString(data)
				req["ext"] = filepath.Ext(args[0])
			}
			return remote(cmd, req, (*server.ParserClient).Submit)
		},
	}
	cmd.Flags().Bool("server-path", false, "send the path for the daemon to read instead of the file content")
	return cmd
}

func jobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show a job and its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(cmd, map[string]any{"job_id": args[0]}, (*server.ParserClient).GetJob)
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs, or export them with --xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			xlsx, _ := cmd.Flags().GetString("xlsx")
			req := map[string]any{"status": status, "limit": limit}
			if xlsx == "" {
				return remote(cmd, req, (*server.ParserClient).ListJobs)
			}

			client, closeConn, err := dial(cmd)
			if err != nil {
				return err
			}
			defer closeConn()
			in, err := structpb.NewStruct(req)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
			defer cancel()
			out, err := client.ExportJobs(ctx, in)
			if err != nil {
				return err
			}
			b, err := base64.StdEncoding.DecodeString(out.GetFields()["xlsx"].GetStringValue())
			if err != nil {
				return fmt.Errorf("decode workbook: %w", err)
			}
			return os.WriteFile(xlsx, b, 0o644)
		},
	}
	cmd.Flags().String("status", "", "filter by status (QUEUED, RUNNING, DONE, FAILED)")
	cmd.Flags().Int("limit", 0, "maximum jobs to return")
	cmd.Flags().String("xlsx", "", "write the jobs' reports to this workbook instead of printing")
	return cmd
}
