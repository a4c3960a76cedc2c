package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/dmitrijs2005/remotestorage/internal/remotestorage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

type uploadOptions struct {
	storage      string
	purpose      string
	context      string
	mime         string
	mediaType    string
	private      bool
	downloadable bool
	quiet        bool
}

func newUploadCommand(withApp runner) *cobra.Command {
	o := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload [flags] FILE...",
		Short: "Queue files for upload and wait for their links",
		Long: `Queue files for upload. Files are sent one at a time in the order given;
each line of output holds the upload id, the file name and its link.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			return app.upload(cmd, o, args)
		}),
	}

	fs := cmd.Flags()
	fs.StringVar(&o.storage, "storage", "files", "target storage: files or media")
	fs.StringVar(&o.purpose, "purpose", "chat-attachment", "upload purpose")
	fs.StringVar(&o.context, "context", "", "upload context, e.g. a chat id")
	fs.StringVar(&o.mime, "mime", "", "content type; detected from the file when empty")
	fs.StringVar(&o.mediaType, "media-type", "", "media type passed to the credential center")
	fs.BoolVar(&o.private, "private", false, "store the object privately")
	fs.BoolVar(&o.downloadable, "downloadable", false, "serve the object as an attachment")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "no progress bar")

	return cmd
}

func (o *uploadOptions) engine() (remotestorage.Engine, error) {
	switch o.storage {
	case "files":
		return remotestorage.EngineFiles, nil
	case "media":
		return remotestorage.EngineMedia, nil
	default:
		return 0, fmt.Errorf("unknown storage %q", o.storage)
	}
}

func (o *uploadOptions) file(path string) (remotestorage.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return remotestorage.File{}, err
	}

	contentType := o.mime
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	f := remotestorage.File{
		Name:         filepath.Base(path),
		Mime:         contentType,
		Contents:     data,
		Access:       remotestorage.AccessPublicRead,
		Downloadable: o.downloadable,
		MediaType:    o.mediaType,
	}
	if o.private {
		f.Access = remotestorage.AccessPrivate
	}
	return f, nil
}

type uploadOutcome struct {
	index int
	meta  remotestorage.UploadedMeta
	err   error
}

func (a *App) upload(cmd *cobra.Command, o *uploadOptions, paths []string) error {
	ctx := cmd.Context()

	engine, err := o.engine()
	if err != nil {
		return err
	}
	a.engine = engine

	files := make([]remotestorage.File, len(paths))
	for i, p := range paths {
		if files[i], err = o.file(p); err != nil {
			return err
		}
	}

	var bar *pb.ProgressBar
	if !o.quiet {
		bar = pb.New(len(files)).SetWriter(cmd.ErrOrStderr()).Start()
	}
	finish := func() {
		if bar != nil {
			bar.Finish()
		}
	}

	unsubscribe := a.svc.SubscribeToUploads(remotestorage.Inline, func(pending []remotestorage.PendingUpload) {
		a.logger.Debug(ctx, "upload queue", "pending", len(pending))
	})
	defer unsubscribe()

	target := remotestorage.Target{Purpose: o.purpose, Context: o.context}
	outcomes := make(chan uploadOutcome, len(files))
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = a.svc.Upload(a.config.APIEndpoint, target, f, remotestorage.Inline, func(meta remotestorage.UploadedMeta, err error) {
			outcomes <- uploadOutcome{index: i, meta: meta, err: err}
		})
	}

	results := make([]uploadOutcome, len(files))
	for range files {
		select {
		case r := <-outcomes:
			results[r.index] = r
			if bar != nil {
				bar.Increment()
			}
		case <-ctx.Done():
			finish()
			return ctx.Err()
		}
	}
	finish()

	out := cmd.OutOrStdout()
	var failed int
	for i, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "%s\t%s\terror: %v\n", ids[i], files[i].Name, r.err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", ids[i], files[i].Name, r.meta.Link)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	return nil
}
