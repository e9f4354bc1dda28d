package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pyropy/rnfs/lib/logger"
)

var log, _ = logger.New("rnfs-cli")

func main() {
	app := &cli.App{
		Name:  "rnfs",
		Usage: "Interact with a running rnfs daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rpc-url",
				Value: "127.0.0.1:4040",
				Usage: "Address of the rnfs daemon RPC endpoint",
			},
		},
		Commands: []*cli.Command{
			publishCmd,
			fetchCmd,
			fetchChunkCmd,
			statusCmd,
			cancelCmd,
			inspectCmd,
			subscribeCmd,
			listCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}
