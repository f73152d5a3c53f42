package store_test

import (
	"context"
	"fmt"

	"github.com/gabrielascui/xenium-to-qupath/pkg/store"
)

func ExampleMemorySource() {
	ids, _ := store.NewMatrix("cell_id", "<u4", [][]float64{{0, 5}, {7, 1}})
	src := store.NewMemorySource(ids)
	defer src.Close()

	a, _ := src.Array(context.Background(), "cell_id")
	fmt.Println(a.Shape, a.Row(1))
	// Output: [2 2] [7 1]
}
