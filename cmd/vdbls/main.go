// Command vdbls inspects and maintains densevdb containers.
//
//	vdbls ls smoke.vdbx
//	vdbls meta --grid density smoke.vdbx
//	vdbls update --voxel 0.5 --high-voxel 0.25 --origin 1,0,0 smoke.vdbx
//	vdbls compact smoke.vdbx
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jpl-au/densevdb"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "vdbls:", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	var config densevdb.Config

	return &cli.App{
		Name:      "vdbls",
		Usage:     "inspect and maintain densevdb containers",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log container operations to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			log := logrus.New()
			log.SetOutput(stderr)
			log.SetLevel(logrus.WarnLevel)
			if c.Bool("verbose") {
				log.SetLevel(logrus.DebugLevel)
			}
			config.Logger = log
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "list grids with their type, resolution, active voxel count and bounds",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					path, err := fileArg(c)
					if err != nil {
						return err
					}
					return list(c.App.Writer, path, config)
				},
			},
			{
				Name:      "meta",
				Usage:     "print file metadata, or a grid's metadata with --grid",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "grid", Usage: "grid `NAME` to describe"},
				},
				Action: func(c *cli.Context) error {
					path, err := fileArg(c)
					if err != nil {
						return err
					}
					return meta(c.App.Writer, path, c.String("grid"), config)
				},
			},
			{
				Name:      "update",
				Usage:     "replace the transform of every grid without touching voxel data",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "voxel", Value: 1, Usage: "voxel size of base grids"},
					&cli.Float64Flag{Name: "high-voxel", Usage: "voxel size of grids named *High* (default --voxel)"},
					&cli.Float64SliceFlag{Name: "origin", Usage: "world position of voxel (0,0,0) as `X,Y,Z`"},
				},
				Action: func(c *cli.Context) error {
					path, err := fileArg(c)
					if err != nil {
						return err
					}
					var origin [3]float32
					if o := c.Float64Slice("origin"); len(o) > 0 {
						if len(o) != 3 {
							return fmt.Errorf("--origin needs 3 values, got %d", len(o))
						}
						origin = [3]float32{float32(o[0]), float32(o[1]), float32(o[2])}
					}
					voxel := c.Float64("voxel")
					high := voxel
					if c.IsSet("high-voxel") {
						high = c.Float64("high-voxel")
					}
					return densevdb.UpdateTransform(path,
						densevdb.ScaleTranslate(float32(voxel), origin),
						densevdb.ScaleTranslate(float32(high), origin),
						config)
				},
			},
			{
				Name:      "compact",
				Usage:     "drop retired records and clear the dirty flag",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					path, err := fileArg(c)
					if err != nil {
						return err
					}
					stats, err := densevdb.Compact(path, config)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%d grids, %d records dropped, %d -> %d bytes\n",
						stats.Grids, stats.Dropped, stats.Before, stats.After)
					return nil
				},
			},
		},
	}
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one FILE argument", c.Command.Name)
	}
	return c.Args().First(), nil
}

func list(w io.Writer, path string, config densevdb.Config) error {
	grids, err := densevdb.ListGrids(path, config)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tRESOLUTION\tACTIVE\tBOUNDS")
	for _, g := range grids {
		r := g.Resolution
		fmt.Fprintf(tw, "%s\t%s\t%dx%dx%d\t%d\t%s\n", g.Name, g.Type, r[0], r[1], r[2], g.ActiveVoxels, bounds(g))
	}
	return tw.Flush()
}

// bounds formats the active voxel bounds as min:max, or "-" for an empty grid.
func bounds(g densevdb.GridInfo) string {
	if g.ActiveVoxels == 0 {
		return "-"
	}
	lo, hi := g.Bounds.Min, g.Bounds.Max
	return fmt.Sprintf("%d,%d,%d:%d,%d,%d", lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
}

func meta(w io.Writer, path, grid string, config densevdb.Config) error {
	r := densevdb.NewReader(config)
	defer r.Close()
	if err := r.Open(path); err != nil {
		return err
	}

	var m densevdb.Meta
	if grid == "" {
		var err error
		if m, err = r.Meta(); err != nil {
			return err
		}
	} else {
		g, err := r.Grid(grid)
		if err != nil {
			return err
		}
		m = g.Meta()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range m.Names() {
		v, _ := m.Get(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, v.Kind(), v)
	}
	return tw.Flush()
}
