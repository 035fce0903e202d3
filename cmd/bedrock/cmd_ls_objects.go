package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/bedrock/pkg/object"
)

func (c *cli) newLsObjectsCmd() *cobra.Command {
	var (
		loose     bool
		reachable []string
		parents   bool
	)

	cmd := &cobra.Command{
		Use:   "ls-objects",
		Short: "List objects in the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.openRepo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(reachable) > 0 {
				flags := object.TraverseNone
				if parents {
					flags = object.TraverseParents
				}
				set, err := r.Reachable(cmd.Context(), reachable, flags)
				if err != nil {
					return err
				}
				for _, name := range set.Sorted() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			filter := object.ListAll
			if loose {
				filter = object.ListLoose
			}
			objects, err := r.Store.ListObjects(cmd.Context(), filter)
			if err != nil {
				return err
			}
			names := make([]object.ObjectName, 0, len(objects))
			for name := range objects {
				names = append(names, name)
			}
			object.SortObjectNames(names)
			for _, name := range names {
				fmt.Fprintf(out, "%s\t%s\n", name, describeLocation(objects[name]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&loose, "loose", false, "only list loose objects")
	cmd.Flags().StringArrayVar(&reachable, "reachable", nil, "list objects reachable from a commit or ref (repeatable)")
	cmd.Flags().BoolVar(&parents, "parents", false, "with --reachable, follow parent commits")
	return cmd
}

func describeLocation(loc *object.ObjectLocation) string {
	var where []string
	if loc.Loose {
		where = append(where, "loose")
	}
	for _, p := range loc.Packs {
		where = append(where, "pack-"+shortHash(p))
	}
	return strings.Join(where, ",")
}
