package cli

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/yaoapp/kun/log"

	"github.com/askiada/go-query-pipeline/pkg/index"
	"github.com/askiada/go-query-pipeline/pkg/nodeparser"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/stream/drawer"
	"github.com/askiada/go-query-pipeline/pkg/stream/logger"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

type ingestFlags struct {
	extensions   []string
	chunkSize    int
	chunkOverlap int
	drawFile     string
}

func newIngestCmd(a *app) *cobra.Command {
	flags := &ingestFlags{}

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Split, embed and store the text files of a directory in the sqlite vector store",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ingest(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.extensions, "ext", []string{".txt", ".md"}, "File extensions to ingest")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", nodeparser.DefaultChunkSize, "Maximum words per node")
	cmd.Flags().IntVar(&flags.chunkOverlap, "chunk-overlap", nodeparser.DefaultChunkOverlap, "Words shared by consecutive nodes")
	cmd.Flags().StringVar(&flags.drawFile, "draw", "", "Write the timed ingestion graph to this DOT file, - for stdout")

	return cmd
}

// readDocuments loads the files of dir with one of the extensions. The document id is the
// path relative to dir, so an edited file keeps its id.
func readDocuments(dir string, extensions []string) ([]*schema.Document, error) {
	docs := []*schema.Document{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "unable to read %s", path)
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.Wrapf(err, "unable to resolve %s", path)
		}

		doc := schema.NewDocument(string(content), map[string]any{
			"file_path": filepath.ToSlash(rel),
			"file_name": d.Name(),
		})
		doc.ID = filepath.ToSlash(rel)
		docs = append(docs, doc)
		log.With(log.F{"path": rel}).Trace("document loaded")

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to walk %s", dir)
	}

	return docs, nil
}

func (a *app) ingest(cmd *cobra.Command, dir string, flags *ingestFlags) (err error) {
	ctx := cmd.Context()

	docs, err := readDocuments(dir, flags.extensions)
	if err != nil {
		return err
	}

	splitter, err := nodeparser.NewSentenceSplitter(
		nodeparser.WithChunkSize(flags.chunkSize),
		nodeparser.WithChunkOverlap(flags.chunkOverlap),
	)
	if err != nil {
		return err
	}

	emb, err := newEmbedder(a.cfg.Embedding)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	pipelineOpts := []model.PipelineOption{logger.PipelineLogger("ingest")}
	if flags.drawFile != "" {
		dotDrawer := drawer.NewFileDrawer(flags.drawFile)
		if flags.drawFile == "-" {
			dotDrawer = drawer.NewDOTDrawer(cmd.OutOrStdout())
		}

		msr := measure.NewDefaultMeasure()
		pipelineOpts = append(pipelineOpts,
			measure.PipelineMeasure(msr),
			drawer.PipelineDrawer(dotDrawer, msr),
		)
	}

	idx, err := index.New(store, emb,
		index.WithParser(splitter),
		index.WithEmbedConcurrency(a.cfg.Concurrency),
		index.WithPipelineOptions(pipelineOpts...),
	)
	if err != nil {
		return err
	}

	// re-ingesting a file replaces its nodes
	for _, doc := range docs {
		err = idx.Delete(ctx, doc.ID)
		if err != nil {
			return err
		}
	}

	total, err := idx.InsertDocuments(ctx, docs)
	if err != nil {
		return err
	}

	count, err := store.Len(ctx)
	if err != nil {
		return err
	}

	a.status(cmd, color.FgGreen, "Ingested %d documents into %d nodes (%d stored in %s)", len(docs), total, count, a.cfg.Store.Path)
	if flags.drawFile != "" && flags.drawFile != "-" {
		a.status(cmd, color.FgWhite, "Graph: %s", flags.drawFile)
	}

	return nil
}
