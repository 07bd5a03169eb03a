package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	logsvc "github.com/trezcool/absensi/services/logger"
	"github.com/trezcool/absensi/storage/database"
	sqlxrepos "github.com/trezcool/absensi/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	cli := &commandLine{conf: conf, out: os.Stdout, now: time.Now}

	if needsDB(os.Args) {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), conf.Attendance.OpTimeout)
		err = database.Ping(ctx, db)
		cancel()
		if err != nil {
			logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
		}

		cli.db = db
		cli.students = sqlxrepos.NewRosterRepository(db)
		cli.ledger = attendance.NewLedger(sqlxrepos.NewAttendanceRepository(db), core.SystemClock{}, conf, logger)
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
