package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/store"
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [cells.zarr | cells.zarr.zip]",
		Short: "List the arrays of a cell store",
		Long: `List the arrays of a cell store with their shapes and data types,
and check that every array 'convert' needs is present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) runInspect(ctx context.Context, input string) error {
	local, err := c.resolveInput(ctx, input)
	if err != nil {
		return err
	}
	src, err := store.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	names, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("list arrays: %w", err)
	}
	fingerprint, err := src.Fingerprint(ctx)
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}

	fmt.Println(StyleTitle.Render(input))
	printKeyValue("fingerprint", fingerprint[:min(len(fingerprint), 16)])
	printKeyValue("arrays", fmt.Sprint(len(names)))
	fmt.Println()

	for _, name := range names {
		info, err := src.Info(ctx, name)
		if err != nil {
			printWarning("%s: %v", name, apperrors.UserMessage(err))
			continue
		}
		printKeyValue(name, fmt.Sprintf("%s %s", shapeString(info.Shape), StyleDim.Render(info.DType)))
	}
	fmt.Println()

	missing := missingArrays(names)
	if len(missing) > 0 {
		printError("Missing %d required array(s)", len(missing))
		for _, name := range missing {
			printDetail("%s", name)
		}
		return apperrors.New(apperrors.ErrCodeMissingDataset, "store lacks %s", strings.Join(missing, ", "))
	}

	for _, r := range cells.Roles {
		info, err := src.Info(ctx, cells.ArrayName(r, cells.FieldVertices))
		if err != nil {
			return err
		}
		rows, capacity := 0, 0
		if len(info.Shape) > 0 {
			rows = info.Shape[0]
		}
		if len(info.Shape) > 1 {
			capacity = info.Shape[1] / 2
		}
		printInfo("%s: %s polygons, up to %s vertices each", r,
			StyleNumber.Render(fmt.Sprint(rows)), StyleNumber.Render(fmt.Sprint(capacity)))
	}
	printSuccess("All required arrays present")
	printNextStep("Convert it", fmt.Sprintf("%s convert %s", appName, input))
	return nil
}

// missingArrays returns the required arrays absent from names.
func missingArrays(names []string) []string {
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var out []string
	for _, req := range cells.RequiredArrays() {
		if !have[req] {
			out = append(out, req)
		}
	}
	return out
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = fmt.Sprint(n)
	}
	return "[" + strings.Join(parts, " × ") + "]"
}
