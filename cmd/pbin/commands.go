package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/skip2/go-qrcode"

	"pbin/pkg/domain"
	"pbin/pkg/pastebin"
	"pbin/svc/svc"
	"pbin/svc/util"
)

const maxInput = 10 << 20

func (a *app) post(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	name := fs.String("name", "", "paste title (default \"untitled paste\")")
	privacy := fs.String("privacy", "", "public, unlisted, private or 0-2 (default unlisted)")
	expire := fs.String("expire", "", "expiration name or code, e.g. \"1 day\" or 1D (default 10M)")
	format := fs.String("format", "", "syntax highlighting format")
	qrPath := fs.String("qr", "", "write a PNG QR code of the paste URL to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "post takes at most one file")
		return 2
	}
	text, err := readInput(fs.Arg(0))
	if err != nil {
		util.Error().Err(err).Msg("failed to read paste text")
		return 1
	}

	opts := pastebin.Options{
		Name:       *name,
		Expiration: *expire,
		Format:     *format,
	}
	if *privacy != "" {
		if n, err := strconv.Atoi(*privacy); err == nil {
			opts.Privacy = n
		} else {
			opts.Privacy = *privacy
		}
	}
	body, err := a.paste.Create(ctx, text, opts)
	if err != nil {
		var oe *domain.OptionError
		if errors.As(err, &oe) {
			fmt.Fprintf(os.Stderr, "%v\nrun `pbin options` for accepted values\n", err)
			return 2
		}
		util.Error().Err(err).Msg("post failed")
		return 1
	}
	fmt.Fprintln(os.Stdout, body)

	if *qrPath != "" {
		if err := writeQR(body, *qrPath); err != nil {
			util.Error().Err(err).Str("path", *qrPath).Msg("failed to write QR code")
			return 1
		}
		util.Info().Str("path", *qrPath).Msg("QR code written")
	}
	return 0
}

func writeQR(body, path string) error {
	if !svc.IsPasteURL(body) {
		return errors.New("response is not a paste URL")
	}
	return qrcode.WriteFile(strings.TrimSpace(body), qrcode.Medium, 256, path)
}

func readInput(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(io.LimitReader(r, maxInput+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxInput {
		return "", fmt.Errorf("input exceeds %d bytes", maxInput)
	}
	return string(b), nil
}

func (a *app) get(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: pbin get <id>")
		return 2
	}
	content, ok := a.paste.Fetch(ctx, args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "no content for paste %q\n", args[0])
		return 1
	}
	fmt.Fprint(os.Stdout, content)
	return 0
}

func (a *app) delete(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: pbin delete <id>")
		return 2
	}
	if err := a.paste.Delete(ctx, args[0]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func (a *app) login(ctx context.Context) int {
	if !a.paste.Login(ctx) {
		fmt.Fprintln(os.Stderr, "login failed")
		return 1
	}
	fmt.Fprintln(os.Stdout, "logged in")
	return 0
}

func (a *app) history(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	n := fs.Int("n", 10, "number of entries")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rows, err := a.paste.Recent(ctx, *n)
	if err != nil {
		if errors.Is(err, domain.ErrHistoryDisabled) {
			fmt.Fprintln(os.Stderr, "history is disabled; set HISTORY_PATH to enable it")
			return 1
		}
		util.Error().Err(err).Msg("failed to read history")
		return 1
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tURL\tTITLE\tPRIVACY\tEXPIRES\tAUTH")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			p.CreatedAt.Local().Format("2006-01-02 15:04"), p.URL, p.Title, p.Privacy, p.Expiration, p.Authenticated)
	}
	tw.Flush()
	return 0
}

func printOptions() int {
	fmt.Fprintln(os.Stdout, "privacy:")
	for i, name := range pastebin.PrivacyNames() {
		fmt.Fprintf(os.Stdout, "  %d  %s\n", i, name)
	}
	fmt.Fprintln(os.Stdout, "expiration:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range pastebin.ExpirationNames() {
		fmt.Fprintf(tw, "  %s\t%s\n", e[1], e[0])
	}
	tw.Flush()
	return 0
}
