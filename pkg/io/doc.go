// Package io reads and writes cell collections as GeoJSON.
//
// # Format
//
// A collection is a GeoJSON FeatureCollection. Each cell is one Feature
// whose geometry holds the cell boundary rings and whose nucleusGeometry
// holds the nucleus rings, the layout QuPath imports as cell objects:
//
//	{
//	  "type": "Feature",
//	  "id": "0b6f3c9e-0c39-4a8e-9b7a-5d1f54a5b0f1",
//	  "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [4, 0], [4, 4], [0, 0]]]},
//	  "nucleusGeometry": {"type": "Polygon", "coordinates": [[[1, 1], [2, 1], [2, 2], [1, 1]]]},
//	  "properties": {"cell_id": 7, "objectType": "cell", "name": "aaaaaaah-1"}
//	}
//
// nucleusGeometry is not part of RFC 7946; readers that do not know it keep
// the boundary only. A cell without rings for one slot gets an empty
// coordinates array, never null.
//
// # Export
//
// [WriteGeoJSON] encodes to any writer and [ExportGeoJSON] to a file. The
// file is written to a temporary name and renamed into place, so a failed
// export leaves no partial document behind. [WriteNDJSON] writes one
// feature per line for line-oriented tools.
//
// # Import
//
// [ReadGeoJSON] and [ImportGeoJSON] decode a document back into a
// [cells.Collection]. Feature ids and ring order are preserved.
package io
