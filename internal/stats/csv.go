package stats

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteCSV writes per-peer RPC counts with a fixed column order.
func WriteCSV(w io.Writer, s Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"peer", "rpcs"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range s.Peers {
		record := []string{
			p.Peer,
			strconv.FormatInt(int64(p.RPCs), 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
