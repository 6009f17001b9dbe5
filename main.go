// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"context"
	"time"

	"github.com/mailkit/gmailsweep/analyzer"
	"github.com/mailkit/gmailsweep/cache"
	"github.com/mailkit/gmailsweep/config"
	"github.com/mailkit/gmailsweep/domain"
	"github.com/mailkit/gmailsweep/fetcher"
	"github.com/mailkit/gmailsweep/gmailconnection"
	"github.com/mailkit/gmailsweep/janitor"
	"github.com/mailkit/gmailsweep/log"
	"github.com/mailkit/gmailsweep/persistence"

	"github.com/sirupsen/logrus"
)

func main() {
	log.InitLogging("debug")
	logger := log.Logger(log.LOG_MAIN)

	conf, err := config.ReadConfig("config.toml")
	if err != nil {
		logger.WithField("error", err).Fatal("Could not load config")
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	ctx := context.Background()

	p, err := persistence.NewPersistence(conf.Database)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not connect to database")
	}
	defer p.Close()

	var itemCache domain.Cache
	itemCache, err = cache.NewRedisCache(conf.RedisAddr)
	if err != nil {
		logger.WithFields(logrus.Fields{"addr": conf.RedisAddr, "error": err}).Warn("Could not connect to redis, continuing without cache")
		itemCache = cache.Noop{}
	}

	svc, err := gmailconnection.NewService(ctx, conf.CredentialsFile, conf.TokenFile)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start gmail connector")
	}
	gmailConn := gmailconnection.NewGmailConnection(svc)

	itemFetcher := fetcher.NewFetcher(gmailConn, itemCache, conf.CacheNamespace, time.Duration(conf.CacheTtlSeconds)*time.Second)
	scorer := analyzer.NewScorer(conf.TrustedDomains)
	itemAnalyzer := analyzer.NewAnalyzer(p, scorer)

	configs := []janitor.ConfigFunc{
		janitor.MaxResults(conf.MaxResults),
	}
	if conf.DryRun {
		configs = append(configs, janitor.DryRun())
	}

	j, err := janitor.NewJanitor(gmailConn, itemFetcher, p, itemCache, scorer, conf.CacheNamespace, configs...)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start janitor")
	}

	logger.WithFields(logrus.Fields{"query": conf.Query, "maxresults": conf.MaxResults, "dryrun": conf.DryRun}).Info("Fetching mailbox items")
	items, err := itemFetcher.Fetch(ctx, conf.Query, conf.MaxResults)
	if err != nil {
		logger.WithField("error", err).Fatal("Fetching items failed")
	}

	originators := itemAnalyzer.Aggregate(items)
	domains := itemAnalyzer.AggregateDomains(items)
	logger.WithFields(logrus.Fields{"items": len(items), "originators": len(originators), "domains": len(domains)}).Info("Analyzed mailbox")

	suggestions := j.Suggest(originators)
	for _, s := range suggestions {
		logger.WithFields(logrus.Fields{
			"originator": s.Originator,
			"action":     s.Action,
			"confidence": s.Confidence,
			"emails":     s.Impact.ItemCount,
			"sizemb":     s.Impact.SizeMb,
			"reason":     s.Reason,
		}).Info("Cleanup suggestion")
	}
	if len(suggestions) == 0 {
		logger.Info("No cleanup suggestions")
	}

	if conf.RunRules {
		logger.WithField("dryrun", conf.DryRun).Info("Running active cleanup rules")
		if conf.DryRun {
			logger.Warn("Rules run as preview only due to dry-run")
		}

		outcomes, err := j.RunActiveRules(ctx)
		if err != nil {
			logger.WithField("error", err).Fatal("Running cleanup rules failed")
		}
		for name, outcome := range outcomes {
			logger.WithFields(logrus.Fields{"rule": name, "deleted": outcome.DeletedCount, "failed": outcome.FailedCount, "message": outcome.Message}).Info("Rule outcome")
		}
	}
}
