package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/flightpeer/cmd/cpeer-flight-agent/app"
)

func main() {
	app.NewApp().Run()
}
