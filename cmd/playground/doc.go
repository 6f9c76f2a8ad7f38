// Command playground is the command-line front end of the code playground.
//
// Usage:
//
//	playground serve --port 8000
//	playground modes
//	playground starter express
//	playground document react-ts --asset-base http://localhost:8000/assets
//	playground run --mode express --file app.js -r "GET /" -r "GET /api/users"
//	echo 'console.log(1 + 1)' | playground run --mode headless-js -f -
//	playground run --mode dom -f page.js --xpath '//li'
//	playground batch ./exercises --glob 'week-*/**/*.ts'
package main
