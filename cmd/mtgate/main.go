package main

import (
	"os"

	"horse.fit/mtgate/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
