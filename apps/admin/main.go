package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	"github.com/trezcool/schoolbus/storage/database"
	sqlxrepos "github.com/trezcool/schoolbus/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	tracking.InitValidators(validate, translator)

	cli := commandLine{
		conf:     conf,
		validate: validate,
		out:      os.Stdout,
	}

	// set up DB
	if needsDB(os.Args) {
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(err)

		cli.db = db.DB
		cli.repo = sqlxrepos.NewLocationRepository(db)
	}

	// start CLI
	err := cli.run(os.Args)
	if cli.db != nil {
		_ = cli.db.Close()
	}
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
