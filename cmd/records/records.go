// Package records contains the client commands that write records to and read records from a running server.
package records

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openfga/recordrelay/pkg/client"
	"github.com/openfga/recordrelay/pkg/recordpb"
	"github.com/openfga/recordrelay/pkg/storage"
)

const (
	serverAddrFlag = "server-addr"
	timeoutFlag    = "timeout"
	fileFlag       = "file"
	batchSizeFlag  = "batch-size"
	collectionFlag = "collection"
	keyPrefixFlag  = "key-prefix"
	limitFlag      = "limit"

	defaultServerAddr = "localhost:8081"
	maxLineSize       = 4 * 1024 * 1024
)

func addClientFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String(serverAddrFlag, defaultServerAddr, "the host:port address of the recordrelay gRPC server")
	flags.Duration(timeoutFlag, 1*time.Minute, "the time allowed for the whole command, including waiting for the server to be ready")
}

// NewLoadCommand returns the command that writes records from a JSON lines file.
func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Write records from a JSON lines file",
		Long: `Write records from a JSON lines file (or stdin with '--file -').

Each line is an object with a "collection", a "key" and an optional "payload" object.
Records are sent in batches through the WriteRecords RPC.`,
		RunE: load,
		Args: cobra.NoArgs,
	}

	addClientFlags(cmd)
	flags := cmd.Flags()
	flags.String(fileFlag, "-", "the JSON lines file to read the records from")
	flags.Int(batchSizeFlag, storage.DefaultMaxRecordsPerWrite, "the number of records sent per WriteRecords call")

	cmd.PreRun = bindFlags(serverAddrFlag, timeoutFlag, fileFlag, batchSizeFlag)

	return cmd
}

// NewReadCommand returns the command that streams the records of a collection to stdout.
func NewReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Stream the records of a collection as JSON lines",
		Long:  "Stream the records of a collection through the ReadRecords RPC and print one JSON object per record.",
		RunE:  read,
		Args:  cobra.NoArgs,
	}

	addClientFlags(cmd)
	flags := cmd.Flags()
	flags.String(collectionFlag, "", "(required) the collection to read")
	flags.String(keyPrefixFlag, "", "only read the records whose key starts with this prefix")
	flags.Int(limitFlag, 0, "the maximum number of records to read. 0 means no limit")

	cmd.PreRun = bindFlags(serverAddrFlag, timeoutFlag, collectionFlag, keyPrefixFlag, limitFlag)

	return cmd
}

func newClient(ctx context.Context) (*client.Client, error) {
	c, err := client.New(client.Config{Addr: viper.GetString(serverAddrFlag)})
	if err != nil {
		return nil, err
	}

	if err := c.WaitReady(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("server at %s is not ready: %w", viper.GetString(serverAddrFlag), err)
	}
	return c, nil
}

func load(cmd *cobra.Command, _ []string) error {
	batchSize := viper.GetInt(batchSizeFlag)
	if batchSize <= 0 {
		return fmt.Errorf("'%s' must be greater than zero", batchSizeFlag)
	}

	in := cmd.InOrStdin()
	if path := viper.GetString(fileFlag); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration(timeoutFlag))
	defer cancel()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	total := 0
	err = scanRecords(in, batchSize, func(batch storage.Writes) error {
		written, err := c.WriteRecords(ctx, batch)
		total += written
		return err
	})

	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records\n", total)
	return err
}

// scanRecords parses r as JSON lines and hands the records to write in batches of at most batchSize.
func scanRecords(r io.Reader, batchSize int, write func(storage.Writes) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	batch := make(storage.Writes, 0, batchSize)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var msg structpb.Struct
		if err := protojson.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		record, err := recordpb.RecordFromStruct(&msg)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		record.Ulid = ""
		record.InsertedAt = time.Time{}

		batch = append(batch, record)
		if len(batch) == batchSize {
			if err := write(batch); err != nil {
				return err
			}
			batch = make(storage.Writes, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(batch) > 0 {
		return write(batch)
	}
	return nil
}

func read(cmd *cobra.Command, _ []string) error {
	filter := storage.ReadRecordsFilter{
		Collection: viper.GetString(collectionFlag),
		KeyPrefix:  viper.GetString(keyPrefixFlag),
	}
	if filter.Collection == "" {
		return fmt.Errorf("'%s' is required", collectionFlag)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration(timeoutFlag))
	defer cancel()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	iter, err := c.ReadRecords(ctx, filter, storage.ReadRecordsOptions{Limit: viper.GetInt(limitFlag)})
	if err != nil {
		return err
	}
	defer iter.Stop()

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	for {
		record, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				return nil
			}
			return err
		}

		line, err := protojson.Marshal(recordpb.RecordToStruct(record))
		if err != nil {
			return err
		}
		if _, err := out.Write(append(line, '\n')); err != nil {
			return err
		}
	}
}
