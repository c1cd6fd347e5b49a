// btusbmon watches for a BusyTag device and prints everything it says.
// Useful for checking cabling and permissions before wiring up a host
// application.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/busy-tag/busytag-usb-driver/btusb"
	"github.com/busy-tag/busytag-usb-driver/logrecorder"
)

func main() {
	logFile := flag.Bool("logfile", false, "also write logs to a dated file")
	sendOnConnect := flag.String("send", "", "string to send whenever the device connects")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	if *logFile {
		if err := logrecorder.OpenAndRotate(logger, "btusb_"); err != nil {
			logger.WithError(err).Fatal("cannot open log file")
		}
	}

	h := btusb.Create()
	if h == btusb.InvalidHandle {
		logger.Fatal("USB stack initialization failed")
	}
	defer btusb.Destroy(h)

	btusb.SetLogCallback(h, func(message string) {
		logger.Debug(message)
	})
	btusb.SetDataCallback(h, func(data []byte) {
		logger.WithField("len", len(data)).Infof("rx % 02X", data)
	})
	btusb.SetConnectionCallback(h, func(connected bool) {
		if !connected {
			logger.Info("device disconnected")
			return
		}
		logger.Info("device connected")
		if *sendOnConnect != "" {
			if n, err := btusb.SendString(h, *sendOnConnect); err != nil {
				logger.WithError(err).Error("send failed")
			} else {
				logger.WithField("len", n).Info("sent")
			}
		}
	})

	btusb.StartMonitoring(h)
	logger.Info("monitoring for BusyTag devices, Ctrl-C to quit")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	btusb.StopMonitoring(h)
}
