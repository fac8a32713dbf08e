// Package main is the entry point of the chunkflow ingest API.
//
// The API accepts document uploads, queues them for parsing and serves
// the chunk, tag and component endpoints over the Postgres chunk store.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/chunkflow/cmd/ingest-api/app"
)

func main() {
	app.NewApp().Run()
}
