package fetch

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel page fetches in Collect.
const DefaultConcurrency = 4

// Collect fetches every URL and joins the extracted texts in input order, each under a
// "Source:" line. Per-page failures are returned alongside the text. The final error is set
// only when no page could be read.
func Collect(ctx context.Context, urls []string, opts *Options) (string, []error, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	texts := make([]string, len(urls))
	errs := make([]error, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			res, err := Text(gCtx, strings.TrimSpace(u), opts)
			if err != nil {
				errs[i] = err
				return nil
			}
			texts[i] = res.Text
			return nil
		})
	}
	_ = g.Wait()

	var sb strings.Builder
	var failures []error
	for i, u := range urls {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		if texts[i] == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Source: %s\n%s", strings.TrimSpace(u), texts[i])
	}

	if sb.Len() == 0 && len(urls) > 0 {
		return "", failures, fmt.Errorf("no readable content from %d URL(s)", len(urls))
	}
	return sb.String(), failures, nil
}
