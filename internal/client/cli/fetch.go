package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/dmitrijs2005/remotestorage/internal/remotestorage"
	"github.com/spf13/cobra"
)

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}

func quality(preview int) remotestorage.Quality {
	if preview > 0 {
		return remotestorage.QualityPreview(preview)
	}
	return remotestorage.QualityOriginal
}

func newFetchCommand(withApp runner) *cobra.Command {
	var (
		preview int
		noCache bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "fetch [flags] URL",
		Short: "Download a remote resource into the local cache",
		Long: `Download a remote resource into the local cache and print its local path,
kind and content type. With -o the bytes are also copied to a file, or to
standard output when the file is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			origin, err := parseOrigin(args[0])
			if err != nil {
				return err
			}

			caching := remotestorage.CachingEnabled
			if noCache {
				caching = remotestorage.CachingDisabled
			}

			res, err := app.svc.FetchFile(cmd.Context(), app.config.APIEndpoint, origin, quality(preview), caching)
			if err != nil {
				return err
			}

			if output != "" {
				return copyResource(cmd.OutOrStdout(), res.Path, output)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s", res.Path, res.Kind, res.Mime)
			if res.Width > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\t%dx%d", res.Width, res.Height)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		}),
	}

	cmd.Flags().IntVar(&preview, "preview", 0, "fetch a preview of this width instead of the original")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the in-memory resource cache")
	cmd.Flags().StringVarP(&output, "output", "o", "", "copy the downloaded bytes to this file")

	return cmd
}

func copyResource(stdout io.Writer, path, output string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	if output == "-" {
		_, err = io.Copy(stdout, src)
		return err
	}

	dst, err := os.Create(output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func newURLCommand(withApp runner) *cobra.Command {
	var preview int

	cmd := &cobra.Command{
		Use:   "url [flags] URL",
		Short: "Print a usable URL for a remote resource",
		Long:  `Print the signed URL of a media resource, or the URL itself when no signature is needed or available.`,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			origin, err := parseOrigin(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.svc.ResolveURL(cmd.Context(), app.config.APIEndpoint, origin, quality(preview)))
			return nil
		}),
	}

	cmd.Flags().IntVar(&preview, "preview", 0, "resolve a preview of this width")
	return cmd
}

func newMetaCommand(withApp runner) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "meta [flags] URL",
		Short: "Print the file name of a remote resource",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			origin, err := parseOrigin(args[0])
			if err != nil {
				return err
			}

			caching := remotestorage.CachingEnabled
			if noCache {
				caching = remotestorage.CachingDisabled
			}

			info, err := app.svc.FetchMeta(cmd.Context(), app.config.APIEndpoint, origin, caching)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.Name)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ask the server even when the answer is cached")
	return cmd
}
