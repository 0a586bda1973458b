// Package driver talks to the actual backends on behalf of a worker.
//
// Each supported data source type registers a Factory in an init function,
// mirroring the builder table in package backend. A Driver implements the
// tools the builder advertised for that type and reads its declared
// resources; the worker runtime turns results into protocol responses.
//
//	postgresql, mysql, sqlite   database/sql (pgx, go-sql-driver/mysql, modernc sqlite)
//	mongodb                     mongo-driver
//	redis                       go-redis
//	elasticsearch, rest_api,    net/http
//	graphql
//	rabbitmq                    amqp091-go
package driver
