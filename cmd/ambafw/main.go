// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/usedbytes/amba-tools/lib/config"
	"github.com/usedbytes/amba-tools/lib/firmware"
	"github.com/usedbytes/amba-tools/lib/repack"
	"github.com/usedbytes/amba-tools/lib/unpack"
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("romfs-type") {
		err = cfg.RomfsType.UnmarshalText([]byte(ctx.String("romfs-type")))
		if err != nil {
			return nil, err
		}
	}

	if ctx.IsSet("le-version") {
		cfg.VersionLittleEndian = ctx.Bool("le-version")
	}

	return cfg, nil
}

func unpackAction(ctx *cli.Context) error {
	var binPath, chPath, destDir string
	switch ctx.Args().Len() {
	case 2:
		binPath = ctx.Args().Get(0)
		destDir = ctx.Args().Get(1)
	case 3:
		binPath = ctx.Args().Get(0)
		chPath = ctx.Args().Get(1)
		destDir = ctx.Args().Get(2)
	default:
		return cli.Exit("FIRMWARE_BIN [CHECKSUM_CH] OUTPUT_DIR are required", 1)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	return unpack.Unpack(binPath, chPath, destDir, unpack.Options{
		Dialect:   cfg.RomfsType.Dialect(),
		LEVersion: cfg.VersionLittleEndian,
	})
}

func repackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 3 {
		return cli.Exit("INPUT_DIR OUTPUT_BIN OUTPUT_CH are required", 1)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	return repack.Repack(ctx.Args().Get(0), ctx.Args().Get(1), ctx.Args().Get(2),
		repack.Options{
			Dialect:   cfg.RomfsType.Dialect(),
			LEVersion: cfg.VersionLittleEndian,
		})
}

func main() {
	app := &cli.App{
		Name:  "ambafw",
		Usage: "A tool for working with Ambarella H22 firmware images",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "verbose",
				Aliases:  []string{"v"},
				Usage:    "Enable more output",
				Required: false,
				Value:    false,
			},
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "TOML config file selecting the firmware flavour",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "romfs-type",
				Usage:    "ROMFS dialect: sj8pro or sj10pro",
				Required: false,
				Value:    string(firmware.SJ8ProType),
			},
			&cli.BoolFlag{
				Name:     "le-version",
				Usage:    "Treat section versions as little-endian",
				Required: false,
				Value:    false,
			},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "unpack",
			Usage:     "Verify a firmware image and extract it to a directory",
			ArgsUsage: "FIRMWARE_BIN [CHECKSUM_CH] OUTPUT_DIR",
			Action:    unpackAction,
		},
		{
			Name:      "repack",
			Usage:     "Rebuild a firmware image from an extracted directory",
			ArgsUsage: "INPUT_DIR OUTPUT_BIN OUTPUT_CH",
			Action:    repackAction,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
