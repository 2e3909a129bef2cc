package github

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	rserrors "reposcope/internal/errors"
	"reposcope/internal/ghurl"
)

// FetchSnapshot pulls metadata, tree, languages and the selected files of a
// repository. Files are fetched opts.BatchSize at a time; a file that fails
// to download is recorded in Skipped. Rate limiting and cancellation abort
// the whole snapshot.
func (c *Client) FetchSnapshot(ctx context.Context, ref ghurl.Ref, opts FetchOptions, progress func(FetchProgress)) (*Snapshot, error) {
	opts = opts.withDefaults()
	report := func(p FetchProgress) {
		if progress != nil {
			progress(p)
		}
	}

	report(FetchProgress{Message: "Fetching repository metadata"})
	repo, err := c.GetRepository(ctx, ref)
	if err != nil {
		return nil, err
	}

	report(FetchProgress{Message: "Fetching file tree"})
	tree, truncated, err := c.GetTree(ctx, ref, repo.DefaultBranch)
	if err != nil {
		return nil, err
	}

	langs, err := c.GetLanguages(ctx, ref)
	if err != nil {
		c.logger.Warn("Language breakdown unavailable", "repo", ref.FullName(), "error", err.Error())
		langs = map[string]int{}
	}

	selected := SelectFiles(tree, opts.MaxFiles, opts.MaxFileBytes)
	c.logger.Debug("Selected files",
		"repo", ref.FullName(),
		"tree", len(tree),
		"selected", len(selected),
	)

	snap := &Snapshot{
		Ref:           ref,
		Repository:    repo,
		Tree:          tree,
		TreeTruncated: truncated,
		Languages:     langs,
	}

	files, skipped, err := c.fetchFiles(ctx, ref, repo.DefaultBranch, selected, opts, report)
	if err != nil {
		return nil, err
	}
	snap.Files = files
	snap.Skipped = skipped

	return snap, nil
}

func (c *Client) fetchFiles(ctx context.Context, ref ghurl.Ref, branch string, selected []TreeEntry, opts FetchOptions, report func(FetchProgress)) ([]File, []SkippedFile, error) {
	results := make([]*File, len(selected))
	reasons := make([]string, len(selected))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.BatchSize)

	for i, entry := range selected {
		g.Go(func() error {
			content, err := c.GetFileContent(gctx, ref, entry.Path, branch)
			if err != nil {
				if gctx.Err() != nil || rserrors.Is(err, rserrors.RateLimited) {
					return err
				}
				reasons[i] = err.Error()
			} else {
				text, cut := truncateContent(content, opts.MaxFileChars)
				results[i] = &File{Path: entry.Path, Content: text, Size: entry.Size, Truncated: cut}
			}

			// serialized so callers see Done increase monotonically
			mu.Lock()
			defer mu.Unlock()
			done++
			report(FetchProgress{
				Message: fmt.Sprintf("Fetched %s", entry.Path),
				Done:    done,
				Total:   len(selected),
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}

	files := make([]File, 0, len(selected))
	var skipped []SkippedFile
	for i, f := range results {
		if f != nil {
			files = append(files, *f)
			continue
		}
		skipped = append(skipped, SkippedFile{Path: selected[i].Path, Reason: reasons[i]})
	}
	return files, skipped, nil
}
