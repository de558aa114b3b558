// Package natsbridge mirrors broadcast events onto NATS subjects and accepts
// input overrides published by other processes.
//
// Events go to "<prefix>.events.<type>". Overrides are read from
// "<prefix>.input_update" as {"node_id", "input_name", "input_value"}; a
// request with a reply subject gets an input_update_response envelope back.
package natsbridge
