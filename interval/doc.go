/*Package interval implements the coordinate helpers shared by the viewer:
  parsing of samtools-style region strings, and greedy row assignment
  ("overlap offset") for drawing overlapping features on separate rows.

  All coordinates are 0-based and half-open unless stated otherwise.
*/
package interval
