package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/bodgit/gmlan/database"
	"github.com/bodgit/gmlan/ecu"
	"github.com/bodgit/gmlan/seedkey"
	"github.com/bodgit/plumbing"
	"github.com/gabriel-vasile/mimetype"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

// parseNumber accepts Go literal syntax plus the bare hex that diagnostic
// tools conventionally print
func parseNumber(s string, bits int) (uint64, error) {
	if v, err := strconv.ParseUint(s, 0, bits); err == nil {
		return v, nil
	}

	return strconv.ParseUint(s, 16, bits)
}

func parseFormat(s string) (seedkey.Format, error) {
	switch strings.ToLower(s) {
	case "legacy":
		return seedkey.Legacy, nil
	case "extended":
		return seedkey.Extended, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

func tableOptions(c *cli.Context) ([]func(*seedkey.Table) error, error) {
	var options []func(*seedkey.Table) error

	if c.IsSet("format") {
		format, err := parseFormat(c.String("format"))
		if err != nil {
			return nil, err
		}

		options = append(options, seedkey.WithFormat(format))
	}

	if c.Bool("lenient") {
		options = append(options, seedkey.Lenient())
	}

	return options, nil
}

func disassemble(t *seedkey.Table, algorithm uint8) string {
	if algorithm == 0 {
		return "~seed"
	}

	r, err := t.Record(algorithm)
	if err != nil || len(r) == 0 {
		return "-"
	}

	return r.String()
}

func calc(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	seed, err := parseNumber(c.Args().First(), 16)
	if err != nil {
		return cli.Exit(err, 1)
	}

	algorithm, err := parseNumber(c.String("algorithm"), 8)
	if err != nil {
		return cli.Exit(err, 1)
	}

	// Algorithm 0 never reads the table so the flag can be omitted for it
	var b []byte
	if c.IsSet("table") {
		if b, err = os.ReadFile(c.String("table")); err != nil {
			return cli.Exit(err, 1)
		}
	}

	options, err := tableOptions(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	t, err := seedkey.New(b, options...)
	if err != nil {
		return cli.Exit(err, 1)
	}

	key, err := t.Calculate(uint16(seed), uint8(algorithm))
	if err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Printf("0x%04x\n", key)

	return nil
}

func search(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	seed, err := parseNumber(c.Args().Get(0), 16)
	if err != nil {
		return cli.Exit(err, 1)
	}

	key, err := parseNumber(c.Args().Get(1), 16)
	if err != nil {
		return cli.Exit(err, 1)
	}

	// Algorithm 0 never reads the table so the flag can be omitted for it
	var b []byte
	if c.IsSet("table") {
		if b, err = os.ReadFile(c.String("table")); err != nil {
			return cli.Exit(err, 1)
		}
	}

	options, err := tableOptions(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	t, err := seedkey.New(b, options...)
	if err != nil {
		return cli.Exit(err, 1)
	}

	algorithms := t.Search(uint16(seed), uint16(key))
	if len(algorithms) == 0 {
		return cli.Exit("no algorithm found", 1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")

	table.SetHeader([]string{"Algorithm", "Operations"})

	for _, algorithm := range algorithms {
		table.Append([]string{fmt.Sprintf("0x%02x", algorithm), disassemble(t, algorithm)})
	}

	table.Render()

	if c.IsSet("database") {
		unit := ecu.None
		if c.IsSet("ecu") {
			if unit, err = ecu.Parse(c.String("ecu")); err != nil {
				return cli.Exit(err, 1)
			}
		}

		db, err := database.New(c.String("database"))
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer db.Close()

		if err := db.AddExchange(c.String("vehicle"), unit, uint16(seed), uint16(key), t.Sum(), algorithms); err != nil {
			return cli.Exit(err, 1)
		}
	}

	return nil
}

type candidate struct {
	name string
	data []byte
}

func readDirectory(path string) ([]candidate, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	var candidates []candidate

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		b, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, candidate{entry.Name(), b})
	}

	return candidates, nil
}

func readZip(path string) ([]candidate, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var candidates []candidate

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}

		b, err := io.ReadAll(rc)
		rc.Close()

		if err != nil {
			return nil, err
		}

		candidates = append(candidates, candidate{f.Name, b})
	}

	return candidates, nil
}

func readCandidates(path string) ([]candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return readDirectory(path)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}

	switch mime.Extension() {
	case ".zip":
		return readZip(path)
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		return []candidate{{filepath.Base(path), b}}, nil
	}
}

type result struct {
	name       string
	algorithms []uint8
	err        error
}

func scan(c *cli.Context) error {
	if c.NArg() < 3 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	seed, err := parseNumber(c.Args().Get(0), 16)
	if err != nil {
		return cli.Exit(err, 1)
	}

	key, err := parseNumber(c.Args().Get(1), 16)
	if err != nil {
		return cli.Exit(err, 1)
	}

	candidates, err := readCandidates(c.Args().Get(2))
	if err != nil {
		return cli.Exit(err, 1)
	}

	if len(candidates) == 0 {
		return cli.Exit("no tables found", 1)
	}

	options, err := tableOptions(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	results := make([]result, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())

	for i, cand := range candidates {
		i, cand := i, cand

		g.Go(func() error {
			t, err := seedkey.New(cand.data, options...)
			if err != nil {
				results[i] = result{name: cand.name, err: err}

				return nil
			}

			results[i] = result{name: cand.name, algorithms: t.Search(uint16(seed), uint16(key))}

			return nil
		})
	}

	// Failures are recorded per table and never abort the other workers
	_ = g.Wait()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")

	table.SetHeader([]string{"Table", "Algorithms"})

	for _, r := range results {
		switch {
		case r.err != nil:
			table.Append([]string{r.name, "error: " + r.err.Error()})
		case len(r.algorithms) == 0:
			table.Append([]string{r.name, "-"})
		default:
			matches := make([]string, len(r.algorithms))
			for i, algorithm := range r.algorithms {
				matches[i] = fmt.Sprintf("0x%02x", algorithm)
			}

			table.Append([]string{r.name, strings.Join(matches, " ")})
		}
	}

	table.Render()

	return nil
}

func info(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	b, err := os.ReadFile(c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}

	options, err := tableOptions(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	t, err := seedkey.New(b, options...)
	if err != nil {
		return cli.Exit(err, 1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(true)

	table.Append([]string{"Size:", strconv.Itoa(len(b))})
	table.Append([]string{"Format:", t.Format().String()})
	table.Append([]string{"Stride:", strconv.Itoa(t.Format().Stride())})
	table.Append([]string{"Operations:", strconv.Itoa(t.Format().Operations())})
	table.Append([]string{"Records:", strconv.Itoa(t.Records())})
	table.Append([]string{"SHA1:", fmt.Sprintf("%x", t.Sum())})

	table.Render()

	if c.Bool("verbose") {
		fmt.Println()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetBorder(false)
		table.SetCenterSeparator("")
		table.SetColumnSeparator("")

		table.SetHeader([]string{"Algorithm", "Operations"})

		for i := 0; i < t.Records(); i++ {
			table.Append([]string{fmt.Sprintf("0x%02x", uint8(i)), disassemble(t, uint8(i))})
		}

		table.Render()
	}

	return nil
}

func convert(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	path := c.Args().First()

	b, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(err, 1)
	}

	options, err := tableOptions(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	t, err := seedkey.New(b, options...)
	if err != nil {
		return cli.Exit(err, 1)
	}

	target := seedkey.Extended
	if t.Format() == seedkey.Extended {
		target = seedkey.Legacy
	}

	converted, err := t.Convert(target)
	if err != nil {
		return cli.Exit(err, 1)
	}

	out, err := converted.MarshalBinary()
	if err != nil {
		return cli.Exit(err, 1)
	}

	var r io.Reader = bytes.NewReader(out)
	if full := int64(256 * target.Stride()); c.Bool("pad") && int64(len(out)) < full {
		r = plumbing.PaddedReader(r, full, 0)
	}

	f, err := os.Create(filepath.Join(c.String("directory"), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"-"+target.String()+".bin"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	if _, err := io.Copy(f, r); err != nil {
		return cli.Exit(err, 1)
	}

	if err := f.Close(); err != nil {
		return cli.Exit(err, 1)
	}

	return nil
}

func importXML(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	db, err := database.New(c.String("database"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer db.Close()

	if err := db.ImportXML(c.Args().First()); err != nil {
		return cli.Exit(err, 1)
	}

	return nil
}

func known(c *cli.Context) error {
	if !c.IsSet("vehicle") || !c.IsSet("ecu") {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	unit, err := ecu.Parse(c.String("ecu"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	db, err := database.New(c.String("database"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer db.Close()

	algorithms, err := db.Algorithms(c.String("vehicle"), unit)
	if err != nil {
		return cli.Exit(err, 1)
	}

	if len(algorithms) == 0 {
		return cli.Exit("no algorithms recorded", 1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")

	table.SetHeader([]string{"Algorithm"})

	for _, algorithm := range algorithms {
		table.Append([]string{fmt.Sprintf("0x%02x", algorithm)})
	}

	table.Render()

	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "gmlan"
	app.Usage = "GM seed/key security access utility"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Commands = []*cli.Command{
		{
			Name:      "calc",
			Usage:     "Calculate the key answering a seed",
			ArgsUsage: "SEED",
			Action:    calc,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "table",
					Aliases: []string{"t"},
					Usage:   "read the algorithm table from `FILE`",
				},
				&cli.StringFlag{
					Name:    "algorithm",
					Aliases: []string{"a"},
					Usage:   "use algorithm `INDEX`",
					Value:   "0",
				},
				&cli.StringFlag{
					Name:  "format",
					Usage: "force the table `FORMAT`, legacy or extended",
				},
				&cli.BoolFlag{
					Name:  "lenient",
					Usage: "skip unknown opcodes instead of failing",
				},
			},
		},
		{
			Name:      "search",
			Usage:     "Find the algorithms reproducing a seed/key exchange",
			ArgsUsage: "SEED KEY",
			Action:    search,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "table",
					Aliases: []string{"t"},
					Usage:   "read the algorithm table from `FILE`",
				},
				&cli.StringFlag{
					Name:  "format",
					Usage: "force the table `FORMAT`, legacy or extended",
				},
				&cli.BoolFlag{
					Name:  "lenient",
					Usage: "skip unknown opcodes instead of failing",
				},
				&cli.StringFlag{
					Name:  "database",
					Usage: "record matches in catalog `DATABASE`",
				},
				&cli.StringFlag{
					Name:  "vehicle",
					Usage: "record matches against `VEHICLE`",
				},
				&cli.StringFlag{
					Name:  "ecu",
					Usage: "record matches against `ECU`",
				},
			},
		},
		{
			Name:      "scan",
			Usage:     "Search every table in a file, directory or zip archive",
			ArgsUsage: "SEED KEY PATH",
			Action:    scan,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "format",
					Usage: "force the table `FORMAT`, legacy or extended",
				},
				&cli.BoolFlag{
					Name:  "lenient",
					Usage: "skip unknown opcodes instead of failing",
				},
			},
		},
		{
			Name:      "info",
			Usage:     "Info on an algorithm table",
			ArgsUsage: "FILE",
			Action:    info,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "increase verbosity",
				},
				&cli.StringFlag{
					Name:  "format",
					Usage: "force the table `FORMAT`, legacy or extended",
				},
			},
		},
		{
			Name:      "convert",
			Usage:     "Rewrite an algorithm table in the other format",
			ArgsUsage: "FILE",
			Action:    convert,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "directory",
					Aliases: []string{"d"},
					Usage:   "output directory",
					Value:   cwd,
				},
				&cli.StringFlag{
					Name:  "format",
					Usage: "force the source table `FORMAT`, legacy or extended",
				},
				&cli.BoolFlag{
					Name:  "pad",
					Usage: "pad the output to the full 256 record size",
				},
			},
		},
		{
			Name:      "import",
			Usage:     "Import an XML session log into the catalog",
			ArgsUsage: "FILE",
			Action:    importXML,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "database",
					Usage: "catalog `DATABASE`",
				},
			},
		},
		{
			Name:   "known",
			Usage:  "List the recorded algorithms for a vehicle and ECU",
			Action: known,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "database",
					Usage: "catalog `DATABASE`",
				},
				&cli.StringFlag{
					Name:  "vehicle",
					Usage: "vehicle `NAME`",
				},
				&cli.StringFlag{
					Name:  "ecu",
					Usage: "control unit `ECU`",
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
