package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"peerledger/blockchain"
	"peerledger/client"
	"peerledger/config"
	"peerledger/logger"
	"peerledger/node"
	"peerledger/signing"
)

const defaultAPI = "http://127.0.0.1:8080"

func newApp() *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "peerledger",
		Usage:                 "run and talk to a peer-replicated signed ledger node",
		Commands: []*cli.Command{
			startCommand(),
			keygenCommand(),
			addressCommand(),
			sendCommand(),
			mineCommand(),
			chainCommand(),
			peersCommand(),
		},
	}
}

func apiFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "api",
		Usage:   "base URL of the node HTTP API",
		Value:   defaultAPI,
		Sources: cli.EnvVars("LEDGER_CLIENT_API"),
	}
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "run a full node until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML or INI config file"},
			&cli.StringFlag{Name: "id", Usage: "node id (default: random UUIDv7)"},
			&cli.StringFlag{Name: "listen", Usage: "peer websocket listen address"},
			&cli.StringFlag{Name: "http", Usage: "HTTP API listen address"},
			&cli.StringSliceFlag{Name: "peer", Usage: "peer websocket URL to dial, repeatable"},
			&cli.IntFlag{Name: "difficulty", Usage: "required leading zero bits of a block hash"},
			&cli.StringFlag{Name: "storage", Usage: "storage backend: leveldb, bolt or memory"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory for the persisted chain"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-file", Usage: "also write logs to this rotating file"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			applyFlags(c, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := []logger.Option{logger.WithLevel(cfg.LogLevel)}
			if cfg.LogFile != "" {
				opts = append(opts, logger.WithFile(cfg.LogFile))
			}
			if err := logger.Init(opts...); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			n, err := node.NewFullNode(*cfg)
			if err != nil {
				return err
			}
			return n.Run(ctx)
		},
	}
}

// applyFlags overrides cfg with every flag given on the command line.
func applyFlags(c *cli.Command, cfg *config.NodeConfig) {
	if c.IsSet("id") {
		cfg.NodeID = c.String("id")
	}
	if c.IsSet("listen") {
		cfg.ListenAddress = c.String("listen")
	}
	if c.IsSet("http") {
		cfg.APIAddress = c.String("http")
	}
	if c.IsSet("peer") {
		cfg.PeerAddresses = c.StringSlice("peer")
	}
	if c.IsSet("difficulty") {
		cfg.DifficultyTarget = uint8(min(max(c.Int("difficulty"), 0), 255))
	}
	if c.IsSet("storage") {
		cfg.StorageBackend = c.String("storage")
	}
	if c.IsSet("data-dir") {
		cfg.PersistencePath = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "create a secp256k1 key file and print its public key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "key file to write", Required: true},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing key file"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("out")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to replace it", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			priv, pub, err := signing.GenerateKey()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(hex.EncodeToString(priv)+"\n"), 0o600); err != nil {
				return err
			}

			_, err = fmt.Fprintln(c.Root().Writer, hex.EncodeToString(pub))
			return err
		},
	}
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "print the public key of a key file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "key file", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			priv, err := signing.LoadKey(c.String("key"))
			if err != nil {
				return err
			}
			pub, err := signing.PublicKey(priv)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.Root().Writer, hex.EncodeToString(pub))
			return err
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "sign a transaction and submit it to a node",
		Flags: []cli.Flag{
			apiFlag(),
			&cli.StringFlag{Name: "key", Usage: "sender key file (created if missing)", Required: true},
			&cli.StringFlag{Name: "to", Usage: "receiver public key, 66 hex characters", Required: true},
			&cli.Uint64Flag{Name: "amount", Usage: "amount to transfer", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			receiver, err := blockchain.ParsePublicKey(c.String("to"))
			if err != nil {
				return err
			}
			priv, err := signing.LoadOrCreateKey(c.String("key"))
			if err != nil {
				return err
			}

			tx, err := blockchain.NewSignedTransaction(priv, receiver, c.Uint64("amount"))
			if err != nil {
				return err
			}

			id, err := client.New(c.String("api")).SubmitTransaction(ctx, &tx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.Root().Writer, id)
			return err
		},
	}
}

func mineCommand() *cli.Command {
	return &cli.Command{
		Name:  "mine",
		Usage: "ask a node to mine its pending transactions",
		Flags: []cli.Flag{apiFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			block, err := client.New(c.String("api")).Mine(ctx)
			if err != nil {
				return err
			}
			return printJSON(c, block)
		},
	}
}

func chainCommand() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "print a node's chain",
		Flags: []cli.Flag{
			apiFlag(),
			&cli.BoolFlag{Name: "head", Usage: "print only the tip"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			api := client.New(c.String("api"))
			if c.Bool("head") {
				head, err := api.Head(ctx)
				if err != nil {
					return err
				}
				return printJSON(c, head)
			}

			blocks, err := api.Chain(ctx)
			if err != nil {
				return err
			}
			return printJSON(c, blocks)
		},
	}
}

func peersCommand() *cli.Command {
	return &cli.Command{
		Name:  "peers",
		Usage: "list a node's peers, or connect it to another",
		Flags: []cli.Flag{
			apiFlag(),
			&cli.StringFlag{Name: "connect", Usage: "peer websocket URL the node should dial"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			api := client.New(c.String("api"))
			if address := c.String("connect"); address != "" {
				if err := api.AddPeer(ctx, address); err != nil {
					return err
				}
			}

			peers, err := api.Peers(ctx)
			if err != nil {
				return err
			}
			return printJSON(c, peers)
		},
	}
}

func printJSON(c *cli.Command, v any) error {
	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
