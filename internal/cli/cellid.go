package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cellid"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// cellIDCommand creates the cellid command.
func (c *CLI) cellIDCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cellid",
		Short: "Encode and decode Xenium cell ids",
		Long: `Encode and decode Xenium cell ids.

Xenium names a cell by writing its 32-bit id as eight hex digits shifted into
the letters a-p, followed by a dash and the dataset suffix: cell 1 of
dataset 1 is "aaaaaaab-1".`,
	}

	cmd.AddCommand(c.cellIDEncodeCommand())
	cmd.AddCommand(c.cellIDDecodeCommand())

	return cmd
}

func (c *CLI) cellIDEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <id> [suffix]",
		Short: "Print the display name of a numeric cell id",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := encodeCellID(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func (c *CLI) cellIDDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <name>",
		Short: "Print the numeric id of a cell name or code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := decodeCellID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// encodeCellID returns the code for args[0], with the "-suffix" part when
// a suffix is given.
func encodeCellID(args []string) (string, error) {
	id, err := parseUint32(args[0])
	if err != nil {
		return "", err
	}
	if len(args) == 1 {
		return cellid.Encode(id), nil
	}
	minor, err := parseUint32(args[1])
	if err != nil {
		return "", err
	}
	return cellid.DisplayName(id, minor), nil
}

// decodeCellID accepts a bare code ("aaaaaaab") or a display name
// ("aaaaaaab-1") and prints the numeric parts.
func decodeCellID(s string) (string, error) {
	if !strings.Contains(s, "-") {
		id, err := cellid.Decode(s)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(id), 10), nil
	}
	id, minor, err := cellid.ParseDisplayName(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d", id, minor), nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "%q is not a 32-bit unsigned id", s)
	}
	return uint32(n), nil
}
