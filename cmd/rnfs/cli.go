package main

import (
	"fmt"
	"net/rpc"
	"os"
	fp "path/filepath"

	"github.com/urfave/cli/v2"

	nodeRPC "github.com/pyropy/rnfs/rpc/node"
)

func call(ctx *cli.Context, method string, args, reply any) error {
	client, err := rpc.DialHTTP("tcp", ctx.String("rpc-url"))
	if err != nil {
		return err
	}

	defer client.Close()

	return client.Call(method, args, reply)
}

var publishCmd = &cli.Command{
	Name:  "publish",
	Usage: "Publish a file to the mesh",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file-path",
			Required: true,
			Usage:    "Path to file you want to publish",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Logical name, defaults to the file name",
		},
	},
	Action: func(ctx *cli.Context) error {
		filePath := ctx.String("file-path")

		name := ctx.String("name")
		if name == "" {
			name = fp.Base(filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		args := nodeRPC.PublishArgs{Name: name, Data: content}
		var reply nodeRPC.PublishReply
		if err := call(ctx, "NodeAPI.Publish", &args, &reply); err != nil {
			return err
		}

		log.Info("Published ", name, " manifest ", reply.ManifestID, " chunks ", len(reply.Chunks))
		fmt.Println(reply.ManifestID)
		return nil
	},
}

var fetchCmd = &cli.Command{
	Name:      "fetch",
	Usage:     "Fetch a file by manifest identity",
	ArgsUsage: "<manifest-id>",
	Action: func(ctx *cli.Context) error {
		args := nodeRPC.FetchArgs{ManifestID: ctx.Args().First()}
		var reply nodeRPC.FetchReply
		if err := call(ctx, "NodeAPI.Fetch", &args, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Handle)
		return nil
	},
}

var fetchChunkCmd = &cli.Command{
	Name:      "fetch-chunk",
	Usage:     "Fetch a single chunk by identity",
	ArgsUsage: "<chunk-id>",
	Action: func(ctx *cli.Context) error {
		args := nodeRPC.FetchChunkArgs{Identity: ctx.Args().First()}
		var reply nodeRPC.FetchChunkReply
		if err := call(ctx, "NodeAPI.FetchChunk", &args, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Handle)
		return nil
	},
}

var statusCmd = &cli.Command{
	Name:      "status",
	Usage:     "Show the state of a fetch handle",
	ArgsUsage: "<handle>",
	Action: func(ctx *cli.Context) error {
		args := nodeRPC.StatusArgs{Handle: ctx.Args().First()}
		var reply nodeRPC.StatusReply
		if err := call(ctx, "NodeAPI.Status", &args, &reply); err != nil {
			return err
		}

		fmt.Printf("state=%s missing=%d/%d", reply.State, reply.Missing, reply.Total)
		if reply.Reason != "" {
			fmt.Printf(" reason=%s", reply.Reason)
		}
		fmt.Println()
		return nil
	},
}

var cancelCmd = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a fetch handle",
	ArgsUsage: "<handle>",
	Action: func(ctx *cli.Context) error {
		args := nodeRPC.CancelArgs{Handle: ctx.Args().First()}
		var reply nodeRPC.CancelReply
		return call(ctx, "NodeAPI.Cancel", &args, &reply)
	},
}

var inspectCmd = &cli.Command{
	Name:      "inspect",
	Usage:     "Show store and ledger state of a chunk identity",
	ArgsUsage: "<chunk-id>",
	Action: func(ctx *cli.Context) error {
		args := nodeRPC.InspectArgs{Identity: ctx.Args().First()}
		var reply nodeRPC.InspectReply
		if err := call(ctx, "NodeAPI.Inspect", &args, &reply); err != nil {
			return err
		}

		fmt.Printf("present=%v", reply.Present)
		if reply.Tracked {
			fmt.Printf(" state=%s attempts=%d waiters=%d", reply.State, reply.Attempts, reply.Waiters)
		}
		fmt.Println()
		return nil
	},
}

var subscribeCmd = &cli.Command{
	Name:      "subscribe",
	Usage:     "Opportunistically cache chunks of a manifest as they are offered",
	ArgsUsage: "<manifest-id>",
	Action: func(ctx *cli.Context) error {
		args := nodeRPC.SubscribeArgs{ManifestID: ctx.Args().First()}
		var reply nodeRPC.SubscribeReply
		return call(ctx, "NodeAPI.Subscribe", &args, &reply)
	},
}

var listCmd = &cli.Command{
	Name:  "ls",
	Usage: "List locally known files",
	Action: func(ctx *cli.Context) error {
		var reply nodeRPC.ListFilesReply
		if err := call(ctx, "NodeAPI.ListFiles", &nodeRPC.ListFilesArgs{}, &reply); err != nil {
			return err
		}

		for _, f := range reply.Files {
			complete := " "
			if f.Complete {
				complete = "*"
			}
			fmt.Printf("%s %s  %s  %d bytes  %d chunks  by %s\n", complete, f.ManifestID, f.Name, f.TotalSize, f.Chunks, f.Publisher)
		}

		return nil
	},
}
