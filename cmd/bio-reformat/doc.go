/*Command bio-reformat converts between FASTQ, FASTA and SAM text, optionally
  downsampling reads.

  Paired FASTQ input is read from -in and -in2 in lockstep. With a single
  -out, mates are interleaved; with -out and -out2, R1 and R2 reads are split
  between the two outputs. SAM input is copied line by line to SAM or BAM
  output, keeping its header. Decoded reads written as SAM become unmapped
  records under a header synthesized from -ref-index.

  Formats are guessed from the file extensions, and .gz, .bgz and .sz
  outputs are compressed. The standard input and output ("-") are FASTQ
  unless -in-format or -out-format says otherwise.

  Usage:
    bio-reformat -in r1.fq.gz -in2 r2.fq.gz -out interleaved.fq.gz -sample-rate 0.1
    bio-reformat -in reads.fq -out reads.fa -fasta-wrap 60
    bio-reformat -in reads.fq -out unmapped.sam -ref-index hg38.fa.fai
    cat aln.sam | bio-reformat -in-format sam -out aln.bam
*/
package main
