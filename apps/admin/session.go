package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	echoapi "github.com/trezcool/absensi/apps/api/echo"
	"github.com/trezcool/absensi/core"
)

// token prints a session token for a student or an administrator.
func (cli *commandLine) token(studentID int, admin string, ttl time.Duration) error {
	p := core.Principal{Subject: admin, IsAdmin: admin != ""}
	if studentID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cli.conf.Attendance.OpTimeout)
		defer cancel()
		student, err := cli.students.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if !student.IsActive() {
			return errors.Errorf("student %d is inactive", studentID)
		}
		p = core.Principal{StudentID: student.ID}
	}

	conf := *cli.conf
	if ttl > 0 {
		conf.Server.JWTExpirationDelta = ttl
	}
	claims := echoapi.NewClaims(p, &conf, cli.now())
	token, err := echoapi.GenerateToken(claims, conf.SecretKey)
	if err != nil {
		return err
	}
	cli.printf("%s\n", token)
	return nil
}

func (cli *commandLine) finalize(date string) error {
	day := cli.ledger.Today().AddDays(-1)
	if date != "" {
		var err error
		if day, err = core.ParseDate(date); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cli.conf.Attendance.OpTimeout)
	defer cancel()
	n, err := cli.ledger.FinalizeDay(ctx, day)
	if err != nil {
		return err
	}
	cli.printf("%s: %d absence(s) recorded\n", day, n)
	return nil
}

// gateSecret prints a new secret for attendance.gateSecret and its provisioning URL.
func (cli *commandLine) gateSecret(account string) error {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      cli.conf.AppName,
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return errors.Wrap(err, "generating gate secret")
	}
	cli.printf("secret: %s\nurl: %s\n", key.Secret(), key.URL())
	return nil
}
