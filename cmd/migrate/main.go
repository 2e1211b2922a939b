package main

import (
	"chalet/config"
	"chalet/helper"
	"os"

	"github.com/rs/zerolog/log"
)

const argLength = 2

func main() {
	if len(os.Args) < argLength {
		log.Fatal().Msg("migration action is required: up, down, drop or step-up")
	}

	if err := helper.Runner(config.Get(), os.Args[1]); err != nil {
		log.Fatal().Err(err).Str("action", os.Args[1]).Msg("migration failed")
	}
}
