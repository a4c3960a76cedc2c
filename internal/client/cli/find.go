package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/remotestorage"
	"github.com/spf13/cobra"
)

var errNoIndex = errors.New("no upload index configured, pass --index")

type uploadRecord struct {
	UploadID   string    `json:"upload_id"`
	Purpose    string    `json:"purpose"`
	Context    string    `json:"context,omitempty"`
	Name       string    `json:"name"`
	Mime       string    `json:"mime"`
	Size       int       `json:"size"`
	Key        string    `json:"key"`
	Link       string    `json:"link"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func recordOf(m remotestorage.UploadedMeta) uploadRecord {
	return uploadRecord{
		UploadID:   m.UploadID,
		Purpose:    m.Target.Purpose,
		Context:    m.Target.Context,
		Name:       m.Name,
		Mime:       m.Mime,
		Size:       m.Size,
		Key:        m.Key,
		Link:       m.Link,
		UploadedAt: m.UploadedAt,
	}
}

func newFindCommand(withApp runner) *cobra.Command {
	return &cobra.Command{
		Use:   "find UPLOAD_ID",
		Short: "Print a completed upload as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			if app.index == nil {
				return errNoIndex
			}
			meta, ok := app.svc.FindUpload(args[0])
			if !ok {
				return fmt.Errorf("upload %s not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(recordOf(meta))
		}),
	}
}

func newListCommand(withApp runner) *cobra.Command {
	var target remotestorage.Target

	cmd := &cobra.Command{
		Use:   "list [flags]",
		Short: "List completed uploads of a target, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *App, args []string) error {
			if app.index == nil {
				return errNoIndex
			}
			metas, err := app.index.ListByTarget(cmd.Context(), target)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tUPLOADED\tLINK")
			for _, m := range metas {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", m.UploadID, m.Name, m.Size, m.UploadedAt.Format(time.RFC3339), m.Link)
			}
			return w.Flush()
		}),
	}

	cmd.Flags().StringVar(&target.Purpose, "purpose", "chat-attachment", "upload purpose")
	cmd.Flags().StringVar(&target.Context, "context", "", "upload context")
	return cmd
}
