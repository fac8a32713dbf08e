// Package main is the entry point of the chunkflow ingest worker.
//
// A worker runs any subset of the pipeline roles: the file-process router,
// the PDF, DOCX and XLSX parser consumers and the chunking consumer.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/chunkflow/cmd/ingest-worker/app"
)

func main() {
	app.NewApp().Run()
}
